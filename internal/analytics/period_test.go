package analytics_test

import (
	"testing"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByPeriod_ScenarioC_ThirtyDays(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "Bad", 40000, domain.QuoteStatusPending, fixedNow.AddDate(0, 0, -10).Format(domain.DateLayout)),
	}
	summary := engine.Aggregate(quotes, 1)

	view := engine.FilterByPeriod(summary, domain.TimePeriod30Days, quotes)

	require.Len(t, view.DailySeries, 30)
	var nonZero int
	for _, d := range view.DailySeries {
		if d.QuoteCount > 0 {
			nonZero++
			assert.Equal(t, "2025-09-14", d.FullDate)
			assert.Equal(t, int64(40000), d.ValueQuoted)
		}
	}
	assert.Equal(t, 1, nonZero)
	assert.Equal(t, int64(0), view.TotalRevenue)
	assert.Equal(t, 1, view.TotalQuotes)
	assert.Equal(t, 0, view.WinRate)
	assert.NotNil(t, view.MonthlySeries)
	assert.Empty(t, view.MonthlySeries)
}

func TestFilterByPeriod_SevenDaysHasOnlyDailySeries(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := sampleQuotes()
	summary := engine.Aggregate(quotes, 3)

	view := engine.FilterByPeriod(summary, domain.TimePeriod7Days, quotes)

	assert.Len(t, view.DailySeries, 7)
	assert.Empty(t, view.MonthlySeries)
	// only q5 (2025-09-22, won) is inside the window
	assert.Equal(t, 1, view.TotalQuotes)
	assert.Equal(t, 1, view.WonQuotes)
	assert.Equal(t, int64(12000), view.TotalRevenue)
	assert.Equal(t, 100, view.WinRate)
	assert.Equal(t, summary.TotalCustomers, view.TotalCustomers)
}

func TestFilterByPeriod_SinceStartHasOnlyMonthlySeries(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := sampleQuotes()
	summary := engine.Aggregate(quotes, 3)

	view := engine.FilterByPeriod(summary, domain.TimePeriodSinceStart, quotes)

	assert.Nil(t, view.DailySeries)
	// November 2024 through September 2025
	assert.Len(t, view.MonthlySeries, 11)
	assert.Equal(t, summary.TotalRevenue, view.TotalRevenue)
	assert.Equal(t, summary.TotalQuotes, view.TotalQuotes)
	assert.Equal(t, summary.PerJobTypeStats, view.PerJobTypeStats)
}

func TestFilterByPeriod_OneYear(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := append(sampleQuotes(),
		quote("ancient", "Tak", 999000, domain.QuoteStatusWon, "2023-05-05"))
	summary := engine.Aggregate(quotes, 3)

	view := engine.FilterByPeriod(summary, domain.TimePeriodYear, quotes)

	require.Len(t, view.MonthlySeries, 12)
	assert.Equal(t, "okt", view.MonthlySeries[0].Month)
	assert.Equal(t, 2024, view.MonthlySeries[0].Year)
	assert.Equal(t, "sep", view.MonthlySeries[11].Month)
	assert.Nil(t, view.DailySeries)
	assert.Equal(t, 6, view.TotalQuotes)
	assert.Equal(t, int64(150000+95000+12000), view.TotalRevenue)
	assert.Equal(t, 50, view.WinRate)
}

func TestFilterByPeriod_DoesNotModifySummary(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := sampleQuotes()
	summary := engine.Aggregate(quotes, 3)
	series := append([]domain.MonthBucket(nil), summary.MonthlySeries...)
	stats := append([]domain.JobTypeStats(nil), summary.PerJobTypeStats...)

	view := engine.FilterByPeriod(summary, domain.TimePeriod7Days, quotes)
	view.PerJobTypeStats[0].QuoteCount = 1000

	assert.Equal(t, series, summary.MonthlySeries)
	assert.Equal(t, stats, summary.PerJobTypeStats)
}

func TestParseTimePeriod(t *testing.T) {
	tests := []struct {
		input string
		want  domain.TimePeriod
		ok    bool
	}{
		{input: "7dager", want: domain.TimePeriod7Days, ok: true},
		{input: "30dager", want: domain.TimePeriod30Days, ok: true},
		{input: "1aar", want: domain.TimePeriodYear, ok: true},
		{input: "frastart", want: domain.TimePeriodSinceStart, ok: true},
		{input: "", want: domain.TimePeriodSinceStart, ok: true},
		{input: "7d", want: domain.TimePeriod7Days, ok: true},
		{input: "all", want: domain.TimePeriodSinceStart, ok: true},
		{input: "14dager", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := domain.ParseTimePeriod(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
