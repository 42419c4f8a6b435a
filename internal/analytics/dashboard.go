package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
)

// DefaultActivityLimit is the number of entries shown in the activity feed
const DefaultActivityLimit = 5

// KPIs builds the dashboard key figures with month-over-month changes
func (e *Engine) KPIs(summary domain.Analytics) []domain.KPI {
	current := keyOf(e.Now())
	previous := current.add(-1)

	var cur, prev domain.MonthBucket
	for _, b := range summary.MonthlySeries {
		m, err := MonthIndex(b.Month)
		if err != nil {
			continue
		}
		switch (monthKey{year: b.Year, month: m}) {
		case current:
			cur = mergeMonth(cur, b)
		case previous:
			prev = mergeMonth(prev, b)
		}
	}

	curRate := WinRate(cur.WonCount, cur.QuoteCount)
	prevRate := WinRate(prev.WonCount, prev.QuoteCount)

	return []domain.KPI{
		{
			Title:  "Total Omsetning",
			Value:  FormatKroner(summary.TotalRevenue),
			Change: FormatChange(PercentageChange(float64(cur.RevenueWon), float64(prev.RevenueWon))),
			Icon:   "DollarSign",
		},
		{
			Title:  "Aktive Tilbud",
			Value:  strconv.Itoa(summary.TotalQuotes - summary.WonQuotes),
			Change: FormatChange(PercentageChange(float64(cur.QuoteCount), float64(prev.QuoteCount))),
			Icon:   "FileText",
		},
		{
			Title:  "Vunnede Tilbud",
			Value:  strconv.Itoa(summary.WonQuotes),
			Change: FormatChange(PercentageChange(float64(cur.WonCount), float64(prev.WonCount))),
			Icon:   "Award",
		},
		{
			Title:  "Treffprosent",
			Value:  fmt.Sprintf("%.1f%%", float64(summary.WinRate)),
			Change: FormatChange(PercentageChange(float64(curRate), float64(prevRate))),
			Icon:   "Target",
		},
	}
}

// PercentageChange returns the relative change in percent. A rise from zero counts
// as 100%.
func PercentageChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

// FormatChange renders a change as "+12.5%" or "-3.0%"
func FormatChange(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatKroner renders an amount with Norwegian digit grouping, e.g. "1 234 567 kr".
// Groups are separated by a no-break space.
func FormatKroner(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune('\u00a0')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " kr"
}

// ChartData returns the trailing twelve months for the dashboard chart
func (e *Engine) ChartData(summary domain.Analytics) []domain.ChartPoint {
	months := e.lastMonths(summary.MonthlySeries, yearMonths)
	points := make([]domain.ChartPoint, 0, len(months))
	for _, m := range months {
		points = append(points, domain.ChartPoint{
			Date:        m.Month,
			RevenueWon:  m.RevenueWon,
			ValueQuoted: m.ValueQuoted,
		})
	}
	return points
}

type datedActivity struct {
	item domain.ActivityItem
	at   time.Time
}

// ActivityFeed lists the most recent quote and customer events, newest first
func (e *Engine) ActivityFeed(quotes []domain.Quote, customers []domain.Customer, limit int) []domain.ActivityItem {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	now := e.Now()
	events := make([]datedActivity, 0, len(quotes)+len(customers))

	for i := range quotes {
		q := quotes[i]
		at, err := q.ParseQuoteDate(e.loc)
		if err != nil {
			if q.CreatedAt == 0 {
				continue
			}
			at = domain.MillisToTime(q.CreatedAt).In(e.loc)
		}

		item := domain.ActivityItem{
			Description: q.Project + " - " + q.CustomerName,
			Timestamp:   RelativeDay(at, now),
		}
		amount := q.Amount
		item.Amount = &amount
		switch q.Status {
		case domain.QuoteStatusWon:
			item.Type, item.Title = domain.ActivityQuoteWon, "Tilbud vunnet"
		case domain.QuoteStatusLost:
			item.Type, item.Title = domain.ActivityQuoteLost, "Tilbud tapt"
		default:
			item.Type, item.Title = domain.ActivityQuoteSent, "Tilbud sendt"
		}
		item.ID = string(item.Type) + "_" + q.ID
		events = append(events, datedActivity{item: item, at: at})
	}

	for _, c := range customers {
		if c.CreatedAt == 0 {
			continue
		}
		at := domain.MillisToTime(c.CreatedAt).In(e.loc)
		events = append(events, datedActivity{
			item: domain.ActivityItem{
				ID:          string(domain.ActivityNewCustomer) + "_" + c.ID,
				Type:        domain.ActivityNewCustomer,
				Title:       "Ny kunde registrert",
				Description: c.Name,
				Timestamp:   RelativeDay(at, now),
			},
			at: at,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.After(events[j].at)
		}
		return events[i].item.ID < events[j].item.ID
	})

	if len(events) > limit {
		events = events[:limit]
	}
	items := make([]domain.ActivityItem, len(events))
	for i, ev := range events {
		items[i] = ev.item
	}
	return items
}

// RelativeDay describes how many calendar days lie between t and now:
// "I dag", "1 dag siden", "N dager siden" within a week, otherwise d.m.yyyy.
func RelativeDay(t, now time.Time) string {
	t = t.In(now.Location())
	days := int(startOfDay(now).Sub(startOfDay(t)).Round(24*time.Hour) / (24 * time.Hour))
	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		return "I dag"
	case days == 1:
		return "1 dag siden"
	case days < 7:
		return fmt.Sprintf("%d dager siden", days)
	default:
		return t.Format("2.1.2006")
	}
}

// QuoteStatsOf counts quotes and sums their values per status
func QuoteStatsOf(quotes []domain.Quote) domain.QuoteStats {
	var stats domain.QuoteStats
	for i := range quotes {
		q := &quotes[i]
		amount := max(q.Amount, 0)
		stats.Total++
		switch q.Status {
		case domain.QuoteStatusWon:
			stats.Won++
			stats.WonValue += amount
		case domain.QuoteStatusLost:
			stats.Lost++
			stats.LostValue += amount
		default:
			stats.Pending++
			stats.PendingValue += amount
		}
	}
	return stats
}
