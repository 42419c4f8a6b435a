// Package metrics exposes Prometheus collectors for the API. Every recorder is
// safe to use as a nil pointer so callers never need to guard metric calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "proanbud"

// Recompute triggers
const (
	TriggerRead    = "read"
	TriggerRefresh = "refresh"
	TriggerLive    = "live"
	TriggerJob     = "job"
)

// AnalyticsMetrics tracks analytics recomputation
type AnalyticsMetrics struct {
	recomputes    *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      prometheus.Histogram
	staleDiscards prometheus.Counter
	subscriptions prometheus.Gauge
}

// NewAnalyticsMetrics registers the analytics collectors on reg
func NewAnalyticsMetrics(reg prometheus.Registerer) *AnalyticsMetrics {
	if reg == nil {
		return &AnalyticsMetrics{}
	}
	m := &AnalyticsMetrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "recomputes_total",
			Help:      "Analytics recomputations by trigger.",
		}, []string{"trigger"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "recompute_failures_total",
			Help:      "Failed analytics recomputations by trigger.",
		}, []string{"trigger"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "recompute_duration_seconds",
			Help:      "Time spent loading data and aggregating analytics.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "stale_discards_total",
			Help:      "Live recomputations discarded because a newer one was already delivered.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "live_subscriptions",
			Help:      "Open live analytics subscriptions.",
		}),
	}
	reg.MustRegister(m.recomputes, m.failures, m.duration, m.staleDiscards, m.subscriptions)
	return m
}

// ObserveRecompute records one recomputation
func (m *AnalyticsMetrics) ObserveRecompute(trigger string, d time.Duration, err error) {
	if m == nil || m.recomputes == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	m.recomputes.WithLabelValues(trigger).Inc()
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(trigger).Inc()
	}
}

// IncStaleDiscard counts a live result dropped as out of date
func (m *AnalyticsMetrics) IncStaleDiscard() {
	if m == nil || m.staleDiscards == nil {
		return
	}
	m.staleDiscards.Inc()
}

// SubscriptionOpened increments the live subscription gauge
func (m *AnalyticsMetrics) SubscriptionOpened() {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.Inc()
}

// SubscriptionClosed decrements the live subscription gauge
func (m *AnalyticsMetrics) SubscriptionClosed() {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.Dec()
}
