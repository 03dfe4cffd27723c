package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.Observe("stale-visit-monitor", 250*time.Millisecond, nil)
	m.Observe("stale-visit-monitor", time.Second, errors.New("query canceled"))
	m.Observe("", time.Millisecond, nil)
	m.CycleSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stale-visit-monitor", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stale-visit-monitor", resultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))
	assert.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("stale-visit-monitor")), 5)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "fieldops_cron_job_duration_seconds", "job", "stale-visit-monitor")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, sum, 1e-9)
}

func TestCronJobMetricsFailureKeepsLastSuccess(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.Observe("outbox-retention", time.Second, errors.New("boom"))
	assert.Equal(t, 0, testutil.CollectAndCount(m.lastSuccess))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("x", time.Second, nil)
	m.CycleSkipped()
	NewCronJobMetrics(nil).Observe("", 0, errors.New("x"))
}
