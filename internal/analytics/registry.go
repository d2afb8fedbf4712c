package analytics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/free5gc/go-l2agent/internal/fabric"
	"github.com/free5gc/go-l2agent/internal/logger"
	"github.com/free5gc/go-l2agent/internal/metrics"
)

// FlowKey identifies a flow installed on a switch.
type FlowKey struct {
	Switch fabric.SwitchID
	Match  fabric.FlowMatch
}

func (k FlowKey) String() string {
	return fmt.Sprintf("switch=%d,%s", k.Switch, k.Match)
}

func (k FlowKey) less(o FlowKey) bool {
	if k.Switch != o.Switch {
		return k.Switch < o.Switch
	}
	if k.Match.InPort != o.Match.InPort {
		return k.Match.InPort < o.Match.InPort
	}
	return k.Match.EthDst < o.Match.EthDst
}

// Registry holds the Counters of every flow that reported statistics.
type Registry struct {
	mu    sync.RWMutex
	flows map[FlowKey]*Counters
	log   *logrus.Entry
}

func NewRegistry() *Registry {
	return &Registry{
		flows: make(map[FlowKey]*Counters),
		log:   logger.AnalyticsLog,
	}
}

func (r *Registry) Get(key FlowKey) (*Counters, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.flows[key]
	return c, ok
}

func (r *Registry) getOrCreate(key FlowKey) *Counters {
	if c, ok := r.Get(key); ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.flows[key]; ok {
		return c
	}
	c := NewCounters()
	r.flows[key] = c
	return c
}

// Record applies a switch report to the counters of its flow and reports
// whether it was accepted.
func (r *Registry) Record(rep fabric.FlowStatsReport) bool {
	protocol := fabric.ProtocolAny
	if rep.Protocol != nil {
		protocol = *rep.Protocol
	}
	duration := float64(rep.DurationSeconds) + 1e-9*float64(rep.DurationNanoseconds)

	key := FlowKey{Switch: rep.Switch, Match: rep.Match}
	// An empty report never creates a flow: freshly installed entries report
	// zero bytes until traffic hits them.
	accepted := rep.ByteCount > 0 &&
		r.getOrCreate(key).Record(protocol, rep.ByteCount, rep.PacketCount, duration)

	log := r.log.WithField(logger.FieldFlow, key)
	if !accepted {
		metrics.RecordFlowStats(metrics.OutcomeStale)
		log.Tracef("stale report: protocol = %d, bytes = %d", protocol, rep.ByteCount)
		return false
	}
	metrics.RecordFlowStats(metrics.OutcomeAccepted)
	log.Debugf("protocol = %d, bytes = %d, packets = %d, duration = %.3fs",
		protocol, rep.ByteCount, rep.PacketCount, duration)
	return true
}

// Keys returns the known flows ordered by switch, ingress port and destination.
func (r *Registry) Keys() []FlowKey {
	r.mu.RLock()
	keys := make([]FlowKey, 0, len(r.flows))
	for k := range r.flows {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

type ProtocolSnapshot struct {
	Protocol fabric.ProtocolID `json:"protocol"`
	Bytes    uint64            `json:"bytes"`
	Packets  uint64            `json:"packets"`
	Duration float64           `json:"duration"`
	BitRate  float64           `json:"bitRate"`
}

type FlowSnapshot struct {
	Switch       fabric.SwitchID    `json:"switch"`
	InPort       fabric.PortID      `json:"inPort"`
	EthDst       string             `json:"ethDst"`
	TotalBytes   uint64             `json:"totalBytes"`
	TotalPackets uint64             `json:"totalPackets"`
	MaxDuration  float64            `json:"maxDuration"`
	BitRate      float64            `json:"bitRate"`
	Protocols    []ProtocolSnapshot `json:"protocols"`
}

// Snapshot copies the state of every flow. Each flow is consistent on its own;
// flows are not frozen against each other.
func (r *Registry) Snapshot() []FlowSnapshot {
	keys := r.Keys()
	snaps := make([]FlowSnapshot, 0, len(keys))
	for _, key := range keys {
		c, ok := r.Get(key)
		if !ok {
			continue
		}
		snaps = append(snaps, newFlowSnapshot(key, c.Samples()))
	}
	return snaps
}

func newFlowSnapshot(key FlowKey, samples map[fabric.ProtocolID]Sample) FlowSnapshot {
	snap := FlowSnapshot{
		Switch:    key.Switch,
		InPort:    key.Match.InPort,
		EthDst:    key.Match.EthDst.String(),
		Protocols: make([]ProtocolSnapshot, 0, len(samples)),
	}
	for p, s := range samples {
		snap.TotalBytes += s.Bytes
		snap.TotalPackets += s.Packets
		if s.Duration > snap.MaxDuration {
			snap.MaxDuration = s.Duration
		}
		snap.Protocols = append(snap.Protocols, ProtocolSnapshot{
			Protocol: p,
			Bytes:    s.Bytes,
			Packets:  s.Packets,
			Duration: s.Duration,
			BitRate:  BitRate(s.Bytes, s.Duration),
		})
	}
	snap.BitRate = BitRate(snap.TotalBytes, snap.MaxDuration)
	sort.Slice(snap.Protocols, func(i, j int) bool {
		return snap.Protocols[i].Protocol < snap.Protocols[j].Protocol
	})
	return snap
}
