package analytics

import (
	"github.com/proanbud/proanbud-api/internal/domain"
)

// yearMonths is the length of the one-year view
const yearMonths = 12

// FilterByPeriod derives a view of summary for the requested window. Short windows
// (7 and 30 days) are rebuilt day by day from the raw quotes and carry no monthly
// series; the one-year view is the trailing twelve months; since-start returns the
// full monthly series. Totals are recomputed from the buckets of the view. The
// summary passed in is not modified.
func (e *Engine) FilterByPeriod(summary domain.Analytics, period domain.TimePeriod, quotes []domain.Quote) domain.Analytics {
	view := summary
	view.PerJobTypeStats = append([]domain.JobTypeStats(nil), summary.PerJobTypeStats...)
	if view.PerJobTypeStats == nil {
		view.PerJobTypeStats = []domain.JobTypeStats{}
	}

	switch period {
	case domain.TimePeriod7Days, domain.TimePeriod30Days:
		daily := e.FillDailyGaps(quotes, period.Days())
		view.DailySeries = daily
		view.MonthlySeries = []domain.MonthBucket{}
		view.TotalQuotes, view.WonQuotes, view.TotalRevenue = 0, 0, 0
		for _, d := range daily {
			view.TotalQuotes += d.QuoteCount
			view.WonQuotes += d.WonCount
			view.TotalRevenue += d.RevenueWon
		}
		view.WinRate = WinRate(view.WonQuotes, view.TotalQuotes)

	case domain.TimePeriodYear:
		monthly := e.lastMonths(summary.MonthlySeries, yearMonths)
		view.MonthlySeries = monthly
		view.DailySeries = nil
		view.TotalQuotes, view.WonQuotes, view.TotalRevenue = 0, 0, 0
		for _, m := range monthly {
			view.TotalQuotes += m.QuoteCount
			view.WonQuotes += m.WonCount
			view.TotalRevenue += m.RevenueWon
		}
		view.WinRate = WinRate(view.WonQuotes, view.TotalQuotes)

	default:
		view.MonthlySeries = e.FillMonthlyGaps(summary.MonthlySeries)
		view.DailySeries = nil
	}

	return view
}
