package analytics

import (
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

// trailingMonths is the minimum length of a gap-filled monthly series
const trailingMonths = 6

// FillMonthlyGaps returns a contiguous, ascending monthly series. It starts at the
// earlier of the first existing bucket and five months before the current month
// and runs to the current month, or to the last existing bucket if that is later.
// Existing buckets replace the zero placeholders. Buckets with an unrecognized month
// label are logged and dropped.
func (e *Engine) FillMonthlyGaps(existing []domain.MonthBucket) []domain.MonthBucket {
	current := keyOf(e.Now())
	start := current.add(-(trailingMonths - 1))
	end := current

	real := make(map[monthKey]domain.MonthBucket, len(existing))
	for _, b := range existing {
		m, err := MonthIndex(b.Month)
		if err != nil {
			e.logger.Warn("dropping month bucket",
				zap.String("month", b.Month),
				zap.Int("year", b.Year),
				zap.Error(err))
			continue
		}
		k := monthKey{year: b.Year, month: m}
		b.Month = MonthName(m)
		if prev, dup := real[k]; dup {
			b = mergeMonth(prev, b)
		}
		real[k] = b
		if k.before(start) {
			start = k
		}
		if end.before(k) {
			end = k
		}
	}

	return e.monthRange(start, end, real)
}

// lastMonths returns exactly n buckets ending at the current month
func (e *Engine) lastMonths(existing []domain.MonthBucket, n int) []domain.MonthBucket {
	current := keyOf(e.Now())
	real := make(map[monthKey]domain.MonthBucket, len(existing))
	for _, b := range existing {
		m, err := MonthIndex(b.Month)
		if err != nil {
			e.logger.Warn("dropping month bucket",
				zap.String("month", b.Month),
				zap.Int("year", b.Year),
				zap.Error(err))
			continue
		}
		k := monthKey{year: b.Year, month: m}
		b.Month = MonthName(m)
		if prev, dup := real[k]; dup {
			b = mergeMonth(prev, b)
		}
		real[k] = b
	}
	return e.monthRange(current.add(-(n - 1)), current, real)
}

func (e *Engine) monthRange(start, end monthKey, real map[monthKey]domain.MonthBucket) []domain.MonthBucket {
	out := make([]domain.MonthBucket, 0, end.index()-start.index()+1)
	for k := start; !end.before(k); k = k.add(1) {
		if b, ok := real[k]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, domain.MonthBucket{Month: MonthName(k.month), Year: k.year})
	}
	return out
}

func mergeMonth(a, b domain.MonthBucket) domain.MonthBucket {
	a.RevenueWon += b.RevenueWon
	a.ValueQuoted += b.ValueQuoted
	a.QuoteCount += b.QuoteCount
	a.WonCount += b.WonCount
	return a
}

// FillDailyGaps returns one bucket per day for the last daysBack days, today
// included, accumulating the quotes dated inside that window.
func (e *Engine) FillDailyGaps(quotes []domain.Quote, daysBack int) []domain.DayBucket {
	if daysBack <= 0 {
		return []domain.DayBucket{}
	}

	today := startOfDay(e.Now())
	first := today.AddDate(0, 0, -(daysBack - 1))

	buckets := make([]domain.DayBucket, daysBack)
	index := make(map[string]int, daysBack)
	for i := 0; i < daysBack; i++ {
		day := first.AddDate(0, 0, i)
		full := day.Format(domain.DateLayout)
		buckets[i] = domain.DayBucket{Date: DayLabel(day), FullDate: full}
		index[full] = i
	}

	for i := range quotes {
		q := &quotes[i]
		date, err := q.ParseQuoteDate(e.loc)
		if err != nil {
			e.logger.Debug("skipping quote without usable date",
				zap.String("quote_id", q.ID),
				zap.Error(err))
			continue
		}
		pos, ok := index[date.Format(domain.DateLayout)]
		if !ok {
			continue
		}
		amount := max(q.Amount, 0)
		b := &buckets[pos]
		b.QuoteCount++
		b.ValueQuoted += amount
		if q.IsWon() {
			b.WonCount++
			b.RevenueWon += amount
		}
	}

	return buckets
}
