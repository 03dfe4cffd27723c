package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRelayMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.IncDelivery("visit_checked_in", RelayPublished)
	m.IncDelivery("visit_checked_in", RelayPublished)
	m.IncDelivery("lead_assigned", RelayDeadLettered)
	m.ObserveBatch(150 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	published, err := fetchCounterValue(mfs, "fieldops_outbox_deliveries_total", "outcome", RelayPublished)
	require.NoError(t, err)
	require.Equal(t, 2.0, published)

	dead, err := fetchCounterValue(mfs, "fieldops_outbox_deliveries_total", "outcome", RelayDeadLettered)
	require.NoError(t, err)
	require.Equal(t, 1.0, dead)
	require.NotNil(t, findMetricFamily(mfs, "fieldops_outbox_batch_duration_seconds"))
}

func TestRelayMetricsNilSafe(t *testing.T) {
	var m *RelayMetrics
	m.IncDelivery("x", RelayRetried)
	m.ObserveBatch(time.Second)
	NewRelayMetrics(nil).IncDelivery("x", RelayRetried)
}
