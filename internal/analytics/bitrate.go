package analytics

import "github.com/free5gc/go-l2agent/internal/fabric"

// BitRate returns bits per second, or 0 when no time has elapsed.
func BitRate(bytes uint64, duration float64) float64 {
	if duration == 0 {
		return 0
	}
	return float64(bytes) * 8 / duration
}

// BitRate is the aggregate rate of the flow: total bytes over the longest
// protocol duration.
func (c *Counters) BitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		bytes    uint64
		duration float64
	)
	for _, s := range c.samples {
		bytes += s.Bytes
		if s.Duration > duration {
			duration = s.Duration
		}
	}
	return BitRate(bytes, duration)
}

func (c *Counters) ProtocolBitRate(p fabric.ProtocolID) float64 {
	s := c.sample(p)
	return BitRate(s.Bytes, s.Duration)
}

func (c *Counters) AllBitRates() map[fabric.ProtocolID]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rates := make(map[fabric.ProtocolID]float64, len(c.samples))
	for p, s := range c.samples {
		rates[p] = BitRate(s.Bytes, s.Duration)
	}
	return rates
}
