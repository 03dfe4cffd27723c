package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Places fallback reasons.
const (
	FallbackTimeout     = "timeout"
	FallbackError       = "error"
	FallbackUnavailable = "unavailable"
)

// FieldMetrics tracks the field engine: visit transitions, nearby latency and
// places degradations.
type FieldMetrics struct {
	transitions    *prometheus.CounterVec
	placesFallback *prometheus.CounterVec
	nearbyLatency  prometheus.Histogram
	nearbyResults  *prometheus.HistogramVec
	staleVisits    prometheus.Gauge
}

// NewFieldMetrics registers the field metrics on reg. A nil registerer yields
// a no-op instance.
func NewFieldMetrics(reg prometheus.Registerer) *FieldMetrics {
	if reg == nil {
		return &FieldMetrics{}
	}
	m := &FieldMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_transitions_total",
			Help: "Market session and visit state transitions.",
		}, []string{"transition"}),
		placesFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_places_fallback_total",
			Help: "Nearby lookups that fell back to internal dealers only.",
		}, []string{"reason"}),
		nearbyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldops_nearby_duration_seconds",
			Help:    "Nearby resolution latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		nearbyResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldops_nearby_candidates",
			Help:    "Candidates returned per nearby resolution by source.",
			Buckets: []float64{0, 1, 5, 10, 20, 40},
		}, []string{"source"}),
		staleVisits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldops_stale_open_visits",
			Help: "Open visits older than the stale threshold at the last monitor run.",
		}),
	}
	reg.MustRegister(m.transitions, m.placesFallback, m.nearbyLatency, m.nearbyResults, m.staleVisits)
	return m
}

// IncTransition counts a state transition such as "visit_checked_in".
func (m *FieldMetrics) IncTransition(name string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(name)).Inc()
}

func (m *FieldMetrics) IncPlacesFallback(reason string) {
	if m == nil || m.placesFallback == nil {
		return
	}
	m.placesFallback.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *FieldMetrics) ObserveNearby(duration time.Duration, internal, external int) {
	if m == nil || m.nearbyLatency == nil {
		return
	}
	m.nearbyLatency.Observe(duration.Seconds())
	m.nearbyResults.WithLabelValues("internal").Observe(float64(internal))
	m.nearbyResults.WithLabelValues("external").Observe(float64(external))
}

func (m *FieldMetrics) SetStaleVisits(count int) {
	if m == nil || m.staleVisits == nil {
		return
	}
	m.staleVisits.Set(float64(count))
}
