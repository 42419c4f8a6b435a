package analytics_test

import (
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKPIs(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("a1", "Bad", 100000, domain.QuoteStatusWon, "2025-08-05"),
		quote("a2", "Bad", 50000, domain.QuoteStatusLost, "2025-08-06"),
		quote("s1", "Bad", 150000, domain.QuoteStatusWon, "2025-09-02"),
		quote("s2", "Bad", 20000, domain.QuoteStatusPending, "2025-09-03"),
	}
	summary := engine.Aggregate(quotes, 2)

	kpis := engine.KPIs(summary)

	require.Len(t, kpis, 4)
	assert.Equal(t, domain.KPI{Title: "Total Omsetning", Value: "250\u00a0000 kr", Change: "+50.0%", Icon: "DollarSign"}, kpis[0])
	assert.Equal(t, domain.KPI{Title: "Aktive Tilbud", Value: "2", Change: "+0.0%", Icon: "FileText"}, kpis[1])
	assert.Equal(t, domain.KPI{Title: "Vunnede Tilbud", Value: "2", Change: "+0.0%", Icon: "Award"}, kpis[2])
	assert.Equal(t, domain.KPI{Title: "Treffprosent", Value: "50.0%", Change: "+0.0%", Icon: "Target"}, kpis[3])
}

func TestPercentageChange(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{name: "growth", current: 150, previous: 100, want: 50},
		{name: "decline", current: 75, previous: 100, want: -25},
		{name: "from zero", current: 10, previous: 0, want: 100},
		{name: "both zero", current: 0, previous: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, analytics.PercentageChange(tt.current, tt.previous), 0.0001)
		})
	}
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "+12.5%", analytics.FormatChange(12.5))
	assert.Equal(t, "-3.0%", analytics.FormatChange(-3))
	assert.Equal(t, "+0.0%", analytics.FormatChange(0))
}

func TestFormatKroner(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{amount: 0, want: "0 kr"},
		{amount: 999, want: "999 kr"},
		{amount: 1000, want: "1\u00a0000 kr"},
		{amount: 1234567, want: "1\u00a0234\u00a0567 kr"},
		{amount: -45000, want: "-45\u00a0000 kr"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, analytics.FormatKroner(tt.amount))
		})
	}
}

func TestChartData_TrailingTwelveMonths(t *testing.T) {
	engine := newTestEngine(fixedNow)
	summary := engine.Aggregate(sampleQuotes(), 0)

	points := engine.ChartData(summary)

	require.Len(t, points, 12)
	assert.Equal(t, "okt", points[0].Date)
	assert.Equal(t, "sep", points[11].Date)
	assert.Equal(t, int64(12000), points[11].RevenueWon)
	assert.Equal(t, int64(60000), points[1].ValueQuoted)
}

func TestRelativeDay(t *testing.T) {
	now := time.Date(2025, time.September, 24, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "earlier today", at: now.Add(-7 * time.Hour), want: "I dag"},
		{name: "late yesterday", at: time.Date(2025, time.September, 23, 23, 0, 0, 0, time.UTC), want: "1 dag siden"},
		{name: "four days", at: now.AddDate(0, 0, -4), want: "4 dager siden"},
		{name: "a week ago", at: now.AddDate(0, 0, -7), want: "17.9.2025"},
		{name: "last year", at: time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC), want: "2.1.2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analytics.RelativeDay(tt.at, now))
		})
	}
}

func TestActivityFeed(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "Bad", 1000, domain.QuoteStatusWon, "2025-09-24"),
		quote("q2", "Bad", 2000, domain.QuoteStatusLost, "2025-09-20"),
		quote("q3", "Bad", 3000, domain.QuoteStatusPending, "2025-09-22"),
		quote("q4", "Bad", 4000, domain.QuoteStatusPending, "2025-08-01"),
	}
	customers := []domain.Customer{
		{ID: "c9", Name: "Kari Hansen", CreatedAt: time.Date(2025, time.September, 23, 10, 0, 0, 0, time.UTC).UnixMilli()},
		{ID: "c0", Name: "Uten dato"},
	}

	feed := engine.ActivityFeed(quotes, customers, 3)

	require.Len(t, feed, 3)
	assert.Equal(t, "tilbud_vunnet_q1", feed[0].ID)
	assert.Equal(t, domain.ActivityQuoteWon, feed[0].Type)
	assert.Equal(t, "Tilbud vunnet", feed[0].Title)
	assert.Equal(t, "Prosjekt q1 - Ola Nordmann", feed[0].Description)
	assert.Equal(t, "I dag", feed[0].Timestamp)
	require.NotNil(t, feed[0].Amount)
	assert.Equal(t, int64(1000), *feed[0].Amount)

	assert.Equal(t, "ny_kunde_c9", feed[1].ID)
	assert.Equal(t, "Kari Hansen", feed[1].Description)
	assert.Nil(t, feed[1].Amount)

	assert.Equal(t, "tilbud_sendt_q3", feed[2].ID)
	assert.Equal(t, "2 dager siden", feed[2].Timestamp)
}

func TestActivityFeed_DefaultLimit(t *testing.T) {
	engine := newTestEngine(fixedNow)

	feed := engine.ActivityFeed(sampleQuotes(), nil, 0)

	assert.Len(t, feed, analytics.DefaultActivityLimit)
}

func TestQuoteStatsOf(t *testing.T) {
	stats := analytics.QuoteStatsOf(sampleQuotes())

	assert.Equal(t, domain.QuoteStats{
		Total:        6,
		Pending:      2,
		Won:          3,
		Lost:         1,
		PendingValue: 280000,
		WonValue:     257000,
		LostValue:    80000,
	}, stats)
}
