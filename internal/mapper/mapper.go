package mapper

import (
	"fmt"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when the business settings carry none
const DefaultCurrency = "NOK"

// ToQuoteDTO converts Quote to QuoteDTO. vatRate is a percentage such as 25.
func ToQuoteDTO(quote *domain.Quote, vatRate float64, currency string) domain.QuoteDTO {
	if currency == "" {
		currency = DefaultCurrency
	}
	return domain.QuoteDTO{
		ID:               quote.ID,
		CustomerID:       quote.CustomerID,
		CustomerName:     quote.CustomerName,
		Project:          quote.Project,
		JobType:          quote.EffectiveJobType(),
		Amount:           quote.Amount,
		AmountInclVAT:    AmountInclVAT(quote.Amount, vatRate),
		Currency:         currency,
		Status:           quote.Status,
		QuoteDate:        quote.QuoteDate,
		ResponseDeadline: quote.ResponseDeadline,
		Description:      quote.Description,
		Notes:            quote.Notes,
		CreatedAt:        millisToTime(quote.CreatedAt),
		UpdatedAt:        millisToTime(quote.UpdatedAt),
	}
}

// ToCustomerDTO converts Customer to CustomerDTO
func ToCustomerDTO(customer *domain.Customer) domain.CustomerDTO {
	addresses := customer.Addresses
	if addresses == nil {
		addresses = []string{}
	}
	return domain.CustomerDTO{
		ID:           customer.ID,
		Name:         customer.Name,
		Email:        customer.Email,
		Phone:        customer.Phone,
		Addresses:    addresses,
		QuoteCount:   customer.QuoteCount,
		WonCount:     customer.WonCount,
		WinRate:      analytics.WinRate(customer.WonCount, customer.QuoteCount),
		LastActivity: millisToTimePtr(customer.LastActivity),
		CreatedAt:    millisToTimePtr(customer.CreatedAt),
	}
}

// AmountInclVAT adds VAT to a whole-krone amount and renders it with two decimals
func AmountInclVAT(amount int64, vatRate float64) string {
	net := decimal.NewFromInt(amount)
	rate := decimal.NewFromFloat(vatRate).Div(decimal.NewFromInt(100))
	return net.Add(net.Mul(rate)).Round(2).StringFixed(2)
}

// UpdateQuoteDenormalizedFields copies the customer's display name onto the quote
func UpdateQuoteDenormalizedFields(quote *domain.Quote, customer *domain.Customer) {
	quote.CustomerID = customer.ID
	quote.CustomerName = customer.Name
}

// FormatError creates a formatted error message
func FormatError(entity, operation string, err error) error {
	return fmt.Errorf("failed to %s %s: %w", operation, entity, err)
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return domain.MillisToTime(ms).UTC()
}

func millisToTimePtr(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := domain.MillisToTime(ms).UTC()
	return &t
}
