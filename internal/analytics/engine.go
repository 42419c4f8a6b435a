// Package analytics derives revenue analytics from quote records. Everything in
// this package is pure computation over in-memory records; callers load and
// persist data.
package analytics

import (
	"sort"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

// Engine aggregates quotes into analytics summaries
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLocation sets the calendar used for day and month boundaries
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine creates an engine using the local clock in UTC unless configured otherwise
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger: logger,
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the current time in the engine's calendar
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// Location returns the engine's calendar location
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Aggregate folds quotes into a summary. The fold is order independent: the same
// set of quotes always yields the same summary apart from LastUpdated.
func (e *Engine) Aggregate(quotes []domain.Quote, customerCount int) domain.Analytics {
	summary := domain.Analytics{TotalCustomers: customerCount}
	months := make(map[monthKey]*domain.MonthBucket)
	jobTypes := make(map[string]*domain.JobTypeStats)

	for i := range quotes {
		q := &quotes[i]
		amount := q.Amount
		if amount < 0 {
			e.logger.Warn("negative quote amount treated as zero",
				zap.String("quote_id", q.ID),
				zap.Int64("amount", amount))
			amount = 0
		}
		won := q.IsWon()

		summary.TotalQuotes++
		if won {
			summary.WonQuotes++
			summary.TotalRevenue += amount
		}

		jobType := q.EffectiveJobType()
		js, ok := jobTypes[jobType]
		if !ok {
			js = &domain.JobTypeStats{JobType: jobType}
			jobTypes[jobType] = js
		}
		js.QuoteCount++
		js.TotalValue += amount
		if won {
			js.WonCount++
			js.WonValue += amount
		}

		date, err := q.ParseQuoteDate(e.loc)
		if err != nil {
			e.logger.Warn("quote has no usable date, left out of monthly series",
				zap.String("quote_id", q.ID),
				zap.String("quote_date", q.QuoteDate),
				zap.Error(err))
			continue
		}
		key := keyOf(date)
		mb, ok := months[key]
		if !ok {
			mb = &domain.MonthBucket{Month: MonthName(key.month), Year: key.year}
			months[key] = mb
		}
		mb.QuoteCount++
		mb.ValueQuoted += amount
		if won {
			mb.WonCount++
			mb.RevenueWon += amount
		}
	}

	summary.WinRate = WinRate(summary.WonQuotes, summary.TotalQuotes)

	summary.PerJobTypeStats = make([]domain.JobTypeStats, 0, len(jobTypes))
	for _, js := range jobTypes {
		js.WinRate = WinRate(js.WonCount, js.QuoteCount)
		summary.PerJobTypeStats = append(summary.PerJobTypeStats, *js)
	}
	sort.Slice(summary.PerJobTypeStats, func(i, j int) bool {
		a, b := summary.PerJobTypeStats[i], summary.PerJobTypeStats[j]
		if a.TotalValue != b.TotalValue {
			return a.TotalValue > b.TotalValue
		}
		return a.JobType < b.JobType
	})

	keys := make([]monthKey, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })
	series := make([]domain.MonthBucket, 0, len(keys))
	for _, k := range keys {
		series = append(series, *months[k])
	}

	summary.MonthlySeries = e.FillMonthlyGaps(series)
	summary.LastUpdated = e.now().UnixMilli()
	return summary
}

// WinRate returns round(100*won/total) with halves rounded up, or 0 when total is 0
func WinRate(won, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*won + total) / (2 * total)
}
