package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuoteStatus represents the lifecycle state of a quote
type QuoteStatus string

const (
	QuoteStatusPending QuoteStatus = "pending"
	QuoteStatusWon     QuoteStatus = "won"
	QuoteStatusLost    QuoteStatus = "lost"
)

// IsValid reports whether s is one of the known statuses
func (s QuoteStatus) IsValid() bool {
	switch s {
	case QuoteStatusPending, QuoteStatusWon, QuoteStatusLost:
		return true
	}
	return false
}

// DateLayout is the storage format for calendar dates (quoteDate, responseDeadline)
const DateLayout = "2006-01-02"

// UnknownJobType labels quotes stored without a job type
const UnknownJobType = "Ukjent"

// Quote is an offer sent to a customer. Stored under accounts/{id}/quotes/{quoteId}.
type Quote struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customerId,omitempty"`
	CustomerName     string      `json:"customerName"`
	Project          string      `json:"project"`
	JobType          string      `json:"jobType"`
	Amount           int64       `json:"amount"`
	Status           QuoteStatus `json:"status"`
	QuoteDate        string      `json:"quoteDate"`
	ResponseDeadline string      `json:"responseDeadline"`
	Description      string      `json:"description,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        int64       `json:"createdAt"`
	UpdatedAt        int64       `json:"updatedAt"`
}

// IsWon reports whether the quote counts towards revenue
func (q *Quote) IsWon() bool {
	return q.Status == QuoteStatusWon
}

// EffectiveJobType returns the job type used for grouping
func (q *Quote) EffectiveJobType() string {
	if jt := strings.TrimSpace(q.JobType); jt != "" {
		return jt
	}
	return UnknownJobType
}

// ParseQuoteDate parses the quote date in loc. Dates are normally stored as
// YYYY-MM-DD; older records carry full RFC 3339 timestamps.
func (q *Quote) ParseQuoteDate(loc *time.Location) (time.Time, error) {
	return ParseCalendarDate(q.QuoteDate, loc)
}

// ParseCalendarDate parses a stored calendar date in loc
func ParseCalendarDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(DateLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t.In(loc), nil
}

// Customer is a client of the business. Stored under accounts/{id}/customers/{customerId}.
// QuoteCount and WonCount are maintained by the quote write paths.
type Customer struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	Addresses    []string `json:"addresses"`
	QuoteCount   int      `json:"quoteCount"`
	WonCount     int      `json:"wonCount"`
	LastActivity int64    `json:"lastActivity"`
	CreatedAt    int64    `json:"createdAt"`
}

// BusinessType is the legal form of the business
type BusinessType string

const (
	BusinessTypeSoleProprietorship BusinessType = "enkeltpersonforetak"
	BusinessTypeAS                 BusinessType = "as"
	BusinessTypeASA                BusinessType = "asa"
	BusinessTypeDA                 BusinessType = "da"
	BusinessTypeANS                BusinessType = "ans"
	BusinessTypeBA                 BusinessType = "ba"
	BusinessTypeOther              BusinessType = "other"
)

// IsValid reports whether t is a known legal form
func (t BusinessType) IsValid() bool {
	switch t {
	case BusinessTypeSoleProprietorship, BusinessTypeAS, BusinessTypeASA, BusinessTypeDA,
		BusinessTypeANS, BusinessTypeBA, BusinessTypeOther:
		return true
	}
	return false
}

// PricingStrategy describes where the business positions its prices
type PricingStrategy string

const (
	PricingStrategyLow     PricingStrategy = "low"
	PricingStrategyMedium  PricingStrategy = "medium"
	PricingStrategyPremium PricingStrategy = "premium"
)

func (p PricingStrategy) IsValid() bool {
	return p == PricingStrategyLow || p == PricingStrategyMedium || p == PricingStrategyPremium
}

// BusinessSettings is the business profile of an account
type BusinessSettings struct {
	// Company information
	CompanyName        string `json:"companyName"`
	OrganizationNumber string `json:"organizationNumber"`
	Address            string `json:"address"`
	PostalCode         string `json:"postalCode"`
	City               string `json:"city"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	Website            string `json:"website"`

	// Business details
	FoundedYear     int          `json:"foundedYear"`
	EmployeeCount   int          `json:"employeeCount"`
	Industry        string       `json:"industry"`
	BusinessType    BusinessType `json:"businessType"`
	AnnualRevenue   int64        `json:"annualRevenue"`
	ServiceAreas    []string     `json:"serviceAreas"`
	Specializations []string     `json:"specializations"`

	// Branding
	LogoURL          string `json:"logoUrl,omitempty"`
	PrimaryColor     string `json:"primaryColor"`
	SecondaryColor   string `json:"secondaryColor"`
	BrandDescription string `json:"brandDescription"`

	// Financial
	Currency            string  `json:"currency"`
	VATRate             float64 `json:"vatRate"`
	DefaultPaymentTerms int     `json:"defaultPaymentTerms"`
	BankAccount         string  `json:"bankAccount"`

	// Quotes and documents
	QuoteValidityDays int    `json:"quoteValidityDays"`
	QuotePrefix       string `json:"quotePrefix"`
	InvoicePrefix     string `json:"invoicePrefix"`
	DefaultQuoteNotes string `json:"defaultQuoteNotes"`

	// Strategy
	AIEnabled          bool            `json:"aiEnabled"`
	MarketSegment      string          `json:"marketSegment"`
	CompetitorAnalysis string          `json:"competitorAnalysis"`
	PricingStrategy    PricingStrategy `json:"pricingStrategy"`

	CreatedAt   int64 `json:"createdAt,omitempty"`
	LastUpdated int64 `json:"lastUpdated,omitempty"`
}

// DefaultBusinessSettings returns the profile a new account starts with
func DefaultBusinessSettings(companyName, email string, now time.Time) BusinessSettings {
	return BusinessSettings{
		CompanyName:         companyName,
		Email:               email,
		FoundedYear:         now.Year(),
		EmployeeCount:       1,
		BusinessType:        BusinessTypeAS,
		ServiceAreas:        []string{},
		Specializations:     []string{},
		PrimaryColor:        "#1A4314",
		SecondaryColor:      "#A2E4B8",
		Currency:            "NOK",
		VATRate:             25,
		DefaultPaymentTerms: 30,
		QuoteValidityDays:   30,
		QuotePrefix:         "TIL",
		InvoicePrefix:       "FAK",
		AIEnabled:           true,
		PricingStrategy:     PricingStrategyMedium,
	}
}

// UserSettings holds per-user preferences
type UserSettings struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Notifications      bool   `json:"notifications"`
	EmailNotifications bool   `json:"emailNotifications"`
	Language           string `json:"language"`
	Timezone           string `json:"timezone"`
	LastUpdated        int64  `json:"lastUpdated,omitempty"`
}

// DefaultUserSettings returns the settings a new account starts with
func DefaultUserSettings(name, email string) UserSettings {
	return UserSettings{
		Name:               name,
		Email:              email,
		Notifications:      true,
		EmailNotifications: true,
		Language:           "no",
		Timezone:           "Europe/Oslo",
	}
}

// AccountProfile is the root document of an account
type AccountProfile struct {
	CreatedAt int64 `json:"createdAt"`
	LastLogin int64 `json:"lastLogin"`
}

// MillisToTime converts a stored unix millisecond timestamp
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
