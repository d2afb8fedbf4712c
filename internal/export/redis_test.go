package export

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/free5gc/go-l2agent/internal/analytics"
	"github.com/free5gc/go-l2agent/internal/fabric"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []published
	err    error
	closed bool
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return redis.NewIntResult(0, p.err)
	}
	p.msgs = append(p.msgs, published{channel: channel, payload: message.([]byte)})
	return redis.NewIntResult(2, nil)
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testRegistry(t *testing.T) *analytics.Registry {
	t.Helper()
	r := analytics.NewRegistry()
	require.True(t, r.Record(fabric.FlowStatsReport{
		Switch:          3,
		Match:           fabric.FlowMatch{InPort: 1, EthDst: 0x0b},
		ByteCount:       100,
		PacketCount:     1,
		DurationSeconds: 4,
	}))
	return r
}

func TestExport(t *testing.T) {
	pub := &fakePublisher{}
	e := newExporter(pub, "l2agent.analytics", time.Second, testRegistry(t))
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "l2agent.analytics", pub.msgs[0].channel)
	assert.JSONEq(t, `{
		"timestamp": "2026-01-02T03:04:05Z",
		"flows": [{
			"switch": 3,
			"inPort": 1,
			"ethDst": "00:00:00:00:00:0b",
			"totalBytes": 100,
			"totalPackets": 1,
			"maxDuration": 4,
			"bitRate": 200,
			"protocols": [{"protocol": 255, "bytes": 100, "packets": 1, "duration": 4, "bitRate": 200}]
		}]
	}`, string(pub.msgs[0].payload))

	var msg Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &msg))
	assert.Len(t, msg.Flows, 1)
}

func TestExportPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	e := newExporter(pub, "ch", 0, testRegistry(t))
	assert.Equal(t, 10*time.Second, e.interval)

	_, err := e.Export(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExporterStartStop(t *testing.T) {
	pub := &fakePublisher{}
	e := newExporter(pub, "ch", 10*time.Millisecond, testRegistry(t))

	var wg sync.WaitGroup
	e.Start(&wg)
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.msgs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	e.Stop()
	e.Stop()
	wg.Wait()
	assert.True(t, pub.closed)
}
