package analytics_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedNow is a Wednesday in late September
var fixedNow = time.Date(2025, time.September, 24, 12, 0, 0, 0, time.UTC)

func newTestEngine(now time.Time) *analytics.Engine {
	return analytics.NewEngine(zap.NewNop(), analytics.WithClock(func() time.Time { return now }))
}

func quote(id, jobType string, amount int64, status domain.QuoteStatus, date string) domain.Quote {
	return domain.Quote{
		ID:           id,
		CustomerID:   "c1",
		CustomerName: "Ola Nordmann",
		Project:      "Prosjekt " + id,
		JobType:      jobType,
		Amount:       amount,
		Status:       status,
		QuoteDate:    date,
	}
}

func TestAggregate_ScenarioA(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "Kjøkken", 100000, domain.QuoteStatusWon, "2025-09-01"),
		quote("q2", "Kjøkken", 200000, domain.QuoteStatusWon, "2025-09-02"),
		quote("q3", "Kjøkken", 50000, domain.QuoteStatusLost, "2025-09-03"),
	}

	summary := engine.Aggregate(quotes, 1)

	assert.Equal(t, int64(300000), summary.TotalRevenue)
	assert.Equal(t, 67, summary.WinRate)
	assert.Equal(t, 3, summary.TotalQuotes)
	assert.Equal(t, 2, summary.WonQuotes)
	require.Len(t, summary.PerJobTypeStats, 1)
	assert.Equal(t, domain.JobTypeStats{
		JobType:    "Kjøkken",
		QuoteCount: 3,
		WonCount:   2,
		WinRate:    67,
		TotalValue: 350000,
		WonValue:   300000,
	}, summary.PerJobTypeStats[0])
}

func TestAggregate_ScenarioB_EmptyInput(t *testing.T) {
	engine := newTestEngine(fixedNow)

	summary := engine.Aggregate(nil, 5)

	assert.Equal(t, 5, summary.TotalCustomers)
	assert.Equal(t, 0, summary.TotalQuotes)
	assert.Equal(t, 0, summary.WonQuotes)
	assert.Equal(t, int64(0), summary.TotalRevenue)
	assert.Equal(t, 0, summary.WinRate)
	assert.Empty(t, summary.PerJobTypeStats)
	assert.NotNil(t, summary.PerJobTypeStats)

	require.Len(t, summary.MonthlySeries, 6)
	expected := []string{"apr", "mai", "jun", "jul", "aug", "sep"}
	for i, b := range summary.MonthlySeries {
		assert.Equal(t, expected[i], b.Month)
		assert.Equal(t, 2025, b.Year)
		assert.Zero(t, b.QuoteCount)
		assert.Zero(t, b.ValueQuoted)
	}
}

func TestAggregate_UnknownJobTypeAndMissingAmount(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "", 0, domain.QuoteStatusWon, "2025-09-01"),
		quote("q2", "   ", 1000, domain.QuoteStatusPending, "2025-09-01"),
	}

	summary := engine.Aggregate(quotes, 0)

	require.Len(t, summary.PerJobTypeStats, 1)
	assert.Equal(t, domain.UnknownJobType, summary.PerJobTypeStats[0].JobType)
	assert.Equal(t, 2, summary.PerJobTypeStats[0].QuoteCount)
	assert.Equal(t, int64(1000), summary.PerJobTypeStats[0].TotalValue)
	assert.Equal(t, int64(0), summary.TotalRevenue)
}

func TestAggregate_SanitizesBadRecords(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("neg", "Bad", -500, domain.QuoteStatusWon, "2025-09-01"),
		quote("nodate", "Bad", 700, domain.QuoteStatusPending, "not a date"),
	}

	summary := engine.Aggregate(quotes, 0)

	assert.Equal(t, 2, summary.TotalQuotes)
	assert.Equal(t, int64(0), summary.TotalRevenue)
	assert.Equal(t, int64(700), summary.PerJobTypeStats[0].TotalValue)

	var inSeries int
	for _, b := range summary.MonthlySeries {
		inSeries += b.QuoteCount
	}
	assert.Equal(t, 1, inSeries, "undated quote is left out of the monthly series")
}

func TestAggregate_JobTypesSortedByTotalValue(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "Bad", 10000, domain.QuoteStatusPending, "2025-09-01"),
		quote("q2", "Tak", 90000, domain.QuoteStatusPending, "2025-09-01"),
		quote("q3", "Maling", 50000, domain.QuoteStatusWon, "2025-09-01"),
		quote("q4", "Bad", 45000, domain.QuoteStatusWon, "2025-09-01"),
	}

	summary := engine.Aggregate(quotes, 0)

	var order []string
	for _, js := range summary.PerJobTypeStats {
		order = append(order, js.JobType)
	}
	assert.Equal(t, []string{"Tak", "Bad", "Maling"}, order)
}

func TestAggregate_Idempotent(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := sampleQuotes()

	first := engine.Aggregate(quotes, 3)
	second := engine.Aggregate(quotes, 3)

	first.LastUpdated, second.LastUpdated = 0, 0
	assert.Equal(t, first, second)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := sampleQuotes()
	baseline := engine.Aggregate(quotes, 3)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.Quote(nil), quotes...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := engine.Aggregate(shuffled, 3)
		assert.Equal(t, baseline.TotalRevenue, got.TotalRevenue)
		assert.Equal(t, baseline.WinRate, got.WinRate)
		assert.Equal(t, baseline.PerJobTypeStats, got.PerJobTypeStats)
		assert.Equal(t, baseline.MonthlySeries, got.MonthlySeries)
	}
}

func TestWinRate(t *testing.T) {
	tests := []struct {
		name  string
		won   int
		total int
		want  int
	}{
		{name: "no quotes", won: 0, total: 0, want: 0},
		{name: "one of three", won: 1, total: 3, want: 33},
		{name: "two of three", won: 2, total: 3, want: 67},
		{name: "half rounds up", won: 1, total: 8, want: 13},
		{name: "all won", won: 4, total: 4, want: 100},
		{name: "none won", won: 0, total: 9, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analytics.WinRate(tt.won, tt.total))
		})
	}
}

func TestMonthIndex(t *testing.T) {
	for i, name := range []string{"jan", "feb", "mar", "apr", "mai", "jun", "jul", "aug", "sep", "okt", "nov", "des"} {
		m, err := analytics.MonthIndex(name)
		require.NoError(t, err)
		assert.Equal(t, time.Month(i+1), m)
		assert.Equal(t, name, analytics.MonthName(m))
	}

	m, err := analytics.MonthIndex("Okt.")
	require.NoError(t, err)
	assert.Equal(t, time.October, m)

	_, err = analytics.MonthIndex("mars")
	require.Error(t, err)
	assert.True(t, errors.Is(err, analytics.ErrUnknownMonth))
	var unknown *analytics.UnknownMonthError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "mars", unknown.Name)
}

func TestFillMonthlyGaps_Completeness(t *testing.T) {
	engine := newTestEngine(fixedNow)
	existing := []domain.MonthBucket{
		{Month: "jan", Year: 2024, QuoteCount: 2, ValueQuoted: 1000},
		{Month: "mar", Year: 2025, QuoteCount: 1, WonCount: 1, RevenueWon: 500, ValueQuoted: 500},
	}

	filled := engine.FillMonthlyGaps(existing)

	// January 2024 through September 2025
	require.Len(t, filled, 21)
	seen := make(map[[2]int]bool)
	for i, b := range filled {
		m, err := analytics.MonthIndex(b.Month)
		require.NoError(t, err)
		key := [2]int{b.Year, int(m)}
		assert.False(t, seen[key], "duplicate bucket %v", key)
		seen[key] = true
		if i > 0 {
			prevMonth, _ := analytics.MonthIndex(filled[i-1].Month)
			prev := time.Date(filled[i-1].Year, prevMonth, 1, 0, 0, 0, 0, time.UTC)
			cur := time.Date(b.Year, m, 1, 0, 0, 0, 0, time.UTC)
			assert.Equal(t, prev.AddDate(0, 1, 0), cur)
		}
	}
	assert.Equal(t, existing[0], filled[0])
	assert.Equal(t, "sep", filled[len(filled)-1].Month)
	assert.Equal(t, 2025, filled[len(filled)-1].Year)
	assert.Equal(t, existing[1], filled[14])
}

func TestFillMonthlyGaps_RecentDataStillCoversSixMonths(t *testing.T) {
	engine := newTestEngine(fixedNow)

	filled := engine.FillMonthlyGaps([]domain.MonthBucket{{Month: "aug", Year: 2025, QuoteCount: 1}})

	require.Len(t, filled, 6)
	assert.Equal(t, "apr", filled[0].Month)
	assert.Equal(t, 1, filled[4].QuoteCount)
}

func TestFillMonthlyGaps_YearBoundary(t *testing.T) {
	engine := newTestEngine(time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC))

	filled := engine.FillMonthlyGaps(nil)

	require.Len(t, filled, 6)
	assert.Equal(t, domain.MonthBucket{Month: "sep", Year: 2025}, filled[0])
	assert.Equal(t, domain.MonthBucket{Month: "feb", Year: 2026}, filled[5])
}

func TestFillMonthlyGaps_DropsUnknownMonth(t *testing.T) {
	engine := newTestEngine(fixedNow)

	filled := engine.FillMonthlyGaps([]domain.MonthBucket{
		{Month: "juni", Year: 2025, QuoteCount: 4},
		{Month: "jul", Year: 2025, QuoteCount: 2},
	})

	require.Len(t, filled, 6)
	var total int
	for _, b := range filled {
		total += b.QuoteCount
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, filled[0].QuoteCount, "unknown label must not land in the first bucket")
}

func TestFillDailyGaps(t *testing.T) {
	engine := newTestEngine(fixedNow)
	quotes := []domain.Quote{
		quote("q1", "Bad", 1000, domain.QuoteStatusWon, "2025-09-24"),
		quote("q2", "Bad", 2000, domain.QuoteStatusPending, "2025-09-24"),
		quote("q3", "Bad", 4000, domain.QuoteStatusLost, "2025-09-18"),
		quote("old", "Bad", 9000, domain.QuoteStatusWon, "2025-09-17"),
		quote("legacy", "Bad", 300, domain.QuoteStatusWon, "2025-09-20T08:30:00Z"),
	}

	daily := engine.FillDailyGaps(quotes, 7)

	require.Len(t, daily, 7)
	assert.Equal(t, "2025-09-18", daily[0].FullDate)
	assert.Equal(t, "18. sep", daily[0].Date)
	assert.Equal(t, "2025-09-24", daily[6].FullDate)
	assert.Equal(t, domain.DayBucket{Date: "24. sep", FullDate: "2025-09-24", RevenueWon: 1000, ValueQuoted: 3000, QuoteCount: 2, WonCount: 1}, daily[6])
	assert.Equal(t, 1, daily[0].QuoteCount)
	assert.Equal(t, int64(300), daily[2].RevenueWon)

	for _, d := range daily {
		assert.NotEqual(t, int64(9000), d.RevenueWon)
	}
}

func TestFillDailyGaps_NonPositiveWindow(t *testing.T) {
	engine := newTestEngine(fixedNow)
	assert.Empty(t, engine.FillDailyGaps(sampleQuotes(), 0))
}

func TestEngine_UsesConfiguredLocation(t *testing.T) {
	oslo := time.FixedZone("CEST", 2*60*60)
	// 23:30 UTC on the 23rd is already the 24th in Oslo
	now := time.Date(2025, time.September, 23, 23, 30, 0, 0, time.UTC)
	engine := analytics.NewEngine(zap.NewNop(),
		analytics.WithClock(func() time.Time { return now }),
		analytics.WithLocation(oslo))

	daily := engine.FillDailyGaps(nil, 1)

	require.Len(t, daily, 1)
	assert.Equal(t, "2025-09-24", daily[0].FullDate)
}

func sampleQuotes() []domain.Quote {
	return []domain.Quote{
		quote("q1", "Kjøkken", 150000, domain.QuoteStatusWon, "2025-01-15"),
		quote("q2", "Bad", 80000, domain.QuoteStatusLost, "2025-02-03"),
		quote("q3", "Bad", 95000, domain.QuoteStatusWon, "2025-02-20"),
		quote("q4", "Tak", 220000, domain.QuoteStatusPending, "2025-06-11"),
		quote("q5", "", 12000, domain.QuoteStatusWon, "2025-09-22"),
		quote("q6", "Kjøkken", 60000, domain.QuoteStatusPending, "2024-11-30"),
	}
}
