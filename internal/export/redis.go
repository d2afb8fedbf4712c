package export

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/analytics"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/pkg/factory"
)

const PUBLISH_TIMEOUT = 3 // seconds

type FlowSource interface {
	Snapshot() []analytics.FlowSnapshot
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Message is what subscribers of the analytics channel receive.
type Message struct {
	Timestamp time.Time                `json:"timestamp"`
	Flows     []analytics.FlowSnapshot `json:"flows"`
}

// Exporter periodically publishes the analytics snapshot on a Redis pub/sub
// channel.
type Exporter struct {
	client   publisher
	channel  string
	interval time.Duration
	flows    FlowSource
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

func NewExporter(cfg *factory.Export, flows FlowSource) *Exporter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return newExporter(client, cfg.Redis.Channel, cfg.Interval, flows)
}

func newExporter(client publisher, channel string, interval time.Duration, flows FlowSource) *Exporter {
	if interval <= 0 {
		interval = factory.L2aDefaultExportInterval
	}
	return &Exporter{
		client:   client,
		channel:  channel,
		interval: interval,
		flows:    flows,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		log:      logger.ExportLog,
	}
}

// Export publishes one snapshot and returns the number of subscribers that
// received it.
func (e *Exporter) Export(ctx context.Context) (int64, error) {
	msg := Message{
		Timestamp: e.now().UTC(),
		Flows:     e.flows.Snapshot(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.Wrap(err, "marshal snapshot")
	}
	n, err := e.client.Publish(ctx, e.channel, payload).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "publish to %s", e.channel)
	}
	return n, nil
}

func (e *Exporter) Start(wg *sync.WaitGroup) {
	e.log.Infof("publishing analytics on %q every %s", e.channel, e.interval)
	wg.Add(1)
	go e.main(wg)
}

func (e *Exporter) main(wg *sync.WaitGroup) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			e.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}

		e.log.Infoln("exporter stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), PUBLISH_TIMEOUT*time.Second)
			n, err := e.Export(ctx)
			cancel()
			if err != nil {
				e.log.Warnln(err)
				continue
			}
			e.log.Tracef("snapshot delivered to %d subscribers", n)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Exporter) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		if err := e.client.Close(); err != nil {
			e.log.Errorf("close redis client: %+v", err)
		}
	})
}
