package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay delivery outcomes.
const (
	RelayPublished    = "published"
	RelayRetried      = "retried"
	RelayDeadLettered = "dead_lettered"
)

// RelayMetrics tracks outbox rows pushed to Pub/Sub by the relay.
type RelayMetrics struct {
	deliveries *prometheus.CounterVec
	batch      prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_outbox_deliveries_total",
			Help: "Outbox rows handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldops_outbox_batch_duration_seconds",
			Help:    "Time spent relaying one outbox batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.deliveries, m.batch)
	return m
}

func (m *RelayMetrics) IncDelivery(eventType, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *RelayMetrics) ObserveBatch(duration time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(duration.Seconds())
}
