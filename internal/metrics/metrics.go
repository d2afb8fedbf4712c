package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "l2agent"

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeAccepted = "accepted"
	OutcomeStale    = "stale"
)

var (
	packetInCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_in_total",
			Help:      "Count of packet-in events by forwarding decision.",
		},
		[]string{"result"},
	)
	floodTransmitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flood_transmit_total",
			Help:      "Count of per-port transmit requests issued while flooding.",
		},
		[]string{"outcome"},
	)
	flowInstallCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_install_total",
			Help:      "Count of flow rules handed to the fabric.",
		},
		[]string{"outcome"},
	)
	flowStatsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_stats_reports_total",
			Help:      "Count of flow statistics reports, accepted or discarded as stale.",
		},
		[]string{"outcome"},
	)
	learnedAddressCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learned_addresses_total",
			Help:      "Count of (switch, hardware address) entries added to the learning table.",
		},
	)
)

var registerMetrics sync.Once

// Register all metrics with the default registry.
func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(packetInCounter)
		prometheus.MustRegister(floodTransmitCounter)
		prometheus.MustRegister(flowInstallCounter)
		prometheus.MustRegister(flowStatsCounter)
		prometheus.MustRegister(learnedAddressCounter)
	})
}

func RecordPacketIn(result string) {
	packetInCounter.WithLabelValues(result).Inc()
}

func RecordFloodTransmit(outcome string) {
	floodTransmitCounter.WithLabelValues(outcome).Inc()
}

func RecordFlowInstall(outcome string) {
	flowInstallCounter.WithLabelValues(outcome).Inc()
}

func RecordFlowStats(outcome string) {
	flowStatsCounter.WithLabelValues(outcome).Inc()
}

// IncLearnedAddresses is called once per newly learned table entry.
func IncLearnedAddresses() {
	learnedAddressCounter.Inc()
}
