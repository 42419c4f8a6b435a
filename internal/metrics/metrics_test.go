package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewJobMetrics(reg)

	m.ObserveDuration("analytics_refresh", 250*time.Millisecond)
	m.IncSuccess("analytics_refresh")
	m.IncFailure("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, mfs, "proanbud_job_success_total", "job", "analytics_refresh"))
	assert.Equal(t, 1.0, counterValue(t, mfs, "proanbud_job_failure_total", "job", "unknown"))
	hist := findMetric(t, mfs, "proanbud_job_duration_seconds", "job", "analytics_refresh").GetHistogram()
	assert.InDelta(t, 0.25, hist.GetSampleSum(), 0.0001)
}

func TestAnalyticsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewAnalyticsMetrics(reg)

	m.ObserveRecompute(metrics.TriggerLive, 10*time.Millisecond, nil)
	m.ObserveRecompute(metrics.TriggerLive, 10*time.Millisecond, errors.New("boom"))
	m.IncStaleDiscard()
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, mfs, "proanbud_analytics_recomputes_total", "trigger", "live"))
	assert.Equal(t, 1.0, counterValue(t, mfs, "proanbud_analytics_recompute_failures_total", "trigger", "live"))
	assert.Equal(t, 1.0, findFamily(t, mfs, "proanbud_analytics_stale_discards_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, findFamily(t, mfs, "proanbud_analytics_live_subscriptions").GetMetric()[0].GetGauge().GetValue())
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	m.Observe("GET", "/api/v1/quotes", 200, 5*time.Millisecond)
	m.Observe("GET", "/api/v1/quotes", 200, 5*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, counterValue(t, mfs, "proanbud_http_requests_total", "route", "/api/v1/quotes"))
}

func TestNilRecordersAreNoOps(t *testing.T) {
	var jobs *metrics.JobMetrics
	var analytics *metrics.AnalyticsMetrics
	var httpMetrics *metrics.HTTPMetrics

	assert.NotPanics(t, func() {
		jobs.IncSuccess("x")
		jobs.ObserveDuration("x", time.Second)
		analytics.ObserveRecompute(metrics.TriggerRead, time.Second, nil)
		analytics.IncStaleDiscard()
		analytics.SubscriptionOpened()
		httpMetrics.Observe("GET", "/", 200, time.Second)
		metrics.NewJobMetrics(nil).IncFailure("x")
		metrics.NewAnalyticsMetrics(nil).SubscriptionClosed()
	})
}

func findFamily(t *testing.T, mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %q not found", name)
	return nil
}

func findMetric(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) *dto.Metric {
	t.Helper()
	for _, metric := range findFamily(t, mfs, name).GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric
			}
		}
	}
	t.Fatalf("metric %q missing label %s=%s", name, label, value)
	return nil
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) float64 {
	t.Helper()
	return findMetric(t, mfs, name, label, value).GetCounter().GetValue()
}
