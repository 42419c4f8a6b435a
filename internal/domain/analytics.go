package domain

import "strings"

// MonthBucket aggregates the quotes of one calendar month
type MonthBucket struct {
	Month       string `json:"month"`
	Year        int    `json:"year"`
	RevenueWon  int64  `json:"revenueWon"`
	ValueQuoted int64  `json:"valueQuoted"`
	QuoteCount  int    `json:"quoteCount"`
	WonCount    int    `json:"wonCount"`
}

// DayBucket aggregates the quotes of one calendar day
type DayBucket struct {
	Date        string `json:"date"`
	FullDate    string `json:"fullDate"`
	RevenueWon  int64  `json:"revenueWon"`
	ValueQuoted int64  `json:"valueQuoted"`
	QuoteCount  int    `json:"quoteCount"`
	WonCount    int    `json:"wonCount"`
}

// JobTypeStats aggregates the quotes of one job type
type JobTypeStats struct {
	JobType    string `json:"jobType"`
	QuoteCount int    `json:"quoteCount"`
	WonCount   int    `json:"wonCount"`
	WinRate    int    `json:"winRate"`
	TotalValue int64  `json:"totalValue"`
	WonValue   int64  `json:"wonValue"`
}

// Analytics is the derived summary of an account's quotes. It is a cache and can
// always be rebuilt from the quote and customer collections.
type Analytics struct {
	TotalCustomers  int            `json:"totalCustomers"`
	TotalQuotes     int            `json:"totalQuotes"`
	WonQuotes       int            `json:"wonQuotes"`
	TotalRevenue    int64          `json:"totalRevenue"`
	WinRate         int            `json:"winRate"`
	MonthlySeries   []MonthBucket  `json:"monthlySeries"`
	DailySeries     []DayBucket    `json:"dailySeries,omitempty"`
	PerJobTypeStats []JobTypeStats `json:"perJobTypeStats"`
	LastUpdated     int64          `json:"lastUpdated"`
	Version         uint64         `json:"version,omitempty"`
}

// TimePeriod selects the analytics window
type TimePeriod string

const (
	TimePeriod7Days      TimePeriod = "7dager"
	TimePeriod30Days     TimePeriod = "30dager"
	TimePeriodYear       TimePeriod = "1aar"
	TimePeriodSinceStart TimePeriod = "frastart"
)

// IsValid checks if the time period is a supported value
func (p TimePeriod) IsValid() bool {
	switch p {
	case TimePeriod7Days, TimePeriod30Days, TimePeriodYear, TimePeriodSinceStart:
		return true
	}
	return false
}

// Days returns the length of a daily window, or 0 for monthly periods
func (p TimePeriod) Days() int {
	switch p {
	case TimePeriod7Days:
		return 7
	case TimePeriod30Days:
		return 30
	}
	return 0
}

var timePeriodAliases = map[string]TimePeriod{
	"7d":  TimePeriod7Days,
	"30d": TimePeriod30Days,
	"1y":  TimePeriodYear,
	"all": TimePeriodSinceStart,
}

// ParseTimePeriod resolves a period or one of its short aliases.
// An empty value means since start.
func ParseTimePeriod(value string) (TimePeriod, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return TimePeriodSinceStart, true
	}
	if p := TimePeriod(value); p.IsValid() {
		return p, true
	}
	p, ok := timePeriodAliases[strings.ToLower(value)]
	return p, ok
}

// KPI is one dashboard key figure
type KPI struct {
	Title  string `json:"title"`
	Value  string `json:"value"`
	Change string `json:"change"`
	Icon   string `json:"icon"`
}

// ChartPoint is one month on the dashboard revenue chart
type ChartPoint struct {
	Date        string `json:"date"`
	RevenueWon  int64  `json:"revenueWon"`
	ValueQuoted int64  `json:"valueQuoted"`
}

// ActivityType identifies entries in the dashboard activity feed
type ActivityType string

const (
	ActivityQuoteWon    ActivityType = "tilbud_vunnet"
	ActivityQuoteLost   ActivityType = "tilbud_tapt"
	ActivityQuoteSent   ActivityType = "tilbud_sendt"
	ActivityNewCustomer ActivityType = "ny_kunde"
)

// ActivityItem is one entry of the dashboard activity feed
type ActivityItem struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Timestamp   string       `json:"timestamp"`
	Amount      *int64       `json:"amount,omitempty"`
}

// QuoteStats summarizes quotes per status
type QuoteStats struct {
	Total        int   `json:"total"`
	Pending      int   `json:"pending"`
	Won          int   `json:"won"`
	Lost         int   `json:"lost"`
	PendingValue int64 `json:"pendingValue"`
	WonValue     int64 `json:"wonValue"`
	LostValue    int64 `json:"lostValue"`
}
