package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(packetInCounter.WithLabelValues("flooded"))
	RecordPacketIn("flooded")
	assert.Equal(t, before+1, testutil.ToFloat64(packetInCounter.WithLabelValues("flooded")))

	before = testutil.ToFloat64(flowStatsCounter.WithLabelValues(OutcomeStale))
	RecordFlowStats(OutcomeStale)
	assert.Equal(t, before+1, testutil.ToFloat64(flowStatsCounter.WithLabelValues(OutcomeStale)))

	before = testutil.ToFloat64(learnedAddressCounter)
	IncLearnedAddresses()
	assert.Equal(t, before+1, testutil.ToFloat64(learnedAddressCounter))

	families, err := prometheus.DefaultGatherer.Gather()
	assert.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["l2agent_packet_in_total"])
	assert.True(t, names["l2agent_learned_addresses_total"])
}
