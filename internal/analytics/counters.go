package analytics

import (
	"sort"
	"sync"

	"github.com/free5gc/go-l2agent/internal/fabric"
)

// Sample is the last accepted statistics report of one protocol.
type Sample struct {
	Bytes    uint64
	Packets  uint64
	Duration float64
}

// Counters keeps per-protocol counters for one switch flow. Switches report
// cumulative values, so a report is only accepted when its byte count is
// positive and not below the one already stored.
type Counters struct {
	mu      sync.Mutex
	samples map[fabric.ProtocolID]Sample
}

func NewCounters() *Counters {
	return &Counters{
		samples: make(map[fabric.ProtocolID]Sample),
	}
}

// Record stores the report for protocol p and reports whether it was
// accepted. A rejected report is stale, not an error.
func (c *Counters) Record(p fabric.ProtocolID, bytes, packets uint64, duration float64) bool {
	if bytes == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.samples[p]; ok && prev.Bytes > bytes {
		return false
	}
	c.samples[p] = Sample{
		Bytes:    bytes,
		Packets:  packets,
		Duration: duration,
	}
	return true
}

func (c *Counters) sample(p fabric.ProtocolID) Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples[p]
}

// Samples returns a copy of every recorded protocol sample.
func (c *Counters) Samples() map[fabric.ProtocolID]Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[fabric.ProtocolID]Sample, len(c.samples))
	for p, s := range c.samples {
		out[p] = s
	}
	return out
}

func (c *Counters) TotalBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, s := range c.samples {
		total += s.Bytes
	}
	return total
}

func (c *Counters) Bytes(p fabric.ProtocolID) uint64 {
	return c.sample(p).Bytes
}

func (c *Counters) TotalPackets() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, s := range c.samples {
		total += s.Packets
	}
	return total
}

func (c *Counters) Packets(p fabric.ProtocolID) uint64 {
	return c.sample(p).Packets
}

// MaxDuration is the longest duration over all protocols. Protocols of the
// same flow overlap in time, so durations are not added up.
func (c *Counters) MaxDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var max float64
	for _, s := range c.samples {
		if s.Duration > max {
			max = s.Duration
		}
	}
	return max
}

func (c *Counters) Duration(p fabric.ProtocolID) float64 {
	return c.sample(p).Duration
}

// Protocols returns the protocols with recorded data in ascending order.
func (c *Counters) Protocols() []fabric.ProtocolID {
	c.mu.Lock()
	defer c.mu.Unlock()
	protocols := make([]fabric.ProtocolID, 0, len(c.samples))
	for p := range c.samples {
		protocols = append(protocols, p)
	}
	sort.Slice(protocols, func(i, j int) bool { return protocols[i] < protocols[j] })
	return protocols
}
