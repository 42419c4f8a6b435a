package domain

import "time"

// QuoteDTO is the API representation of a quote
type QuoteDTO struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customerId,omitempty"`
	CustomerName     string      `json:"customerName"`
	Project          string      `json:"project"`
	JobType          string      `json:"jobType"`
	Amount           int64       `json:"amount"`
	AmountInclVAT    string      `json:"amountInclVat"`
	Currency         string      `json:"currency"`
	Status           QuoteStatus `json:"status"`
	QuoteDate        string      `json:"quoteDate"`
	ResponseDeadline string      `json:"responseDeadline"`
	Description      string      `json:"description,omitempty"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// CustomerDTO is the API representation of a customer
type CustomerDTO struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Addresses    []string   `json:"addresses"`
	QuoteCount   int        `json:"quoteCount"`
	WonCount     int        `json:"wonCount"`
	WinRate      int        `json:"winRate"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// CreateQuoteRequest is the payload for creating a quote
type CreateQuoteRequest struct {
	CustomerID       string      `json:"customerId" validate:"required,max=128"`
	Project          string      `json:"project" validate:"required,max=200"`
	JobType          string      `json:"jobType" validate:"max=100"`
	Amount           int64       `json:"amount" validate:"gte=0"`
	Status           QuoteStatus `json:"status" validate:"omitempty,oneof=pending won lost"`
	QuoteDate        string      `json:"quoteDate" validate:"required,datetime=2006-01-02"`
	ResponseDeadline string      `json:"responseDeadline" validate:"omitempty,datetime=2006-01-02"`
	Description      string      `json:"description" validate:"max=2000"`
	Notes            string      `json:"notes" validate:"max=2000"`
}

// UpdateQuoteRequest is a partial update; nil fields are left untouched
type UpdateQuoteRequest struct {
	CustomerID       *string      `json:"customerId" validate:"omitempty,max=128"`
	Project          *string      `json:"project" validate:"omitempty,max=200"`
	JobType          *string      `json:"jobType" validate:"omitempty,max=100"`
	Amount           *int64       `json:"amount" validate:"omitempty,gte=0"`
	Status           *QuoteStatus `json:"status" validate:"omitempty,oneof=pending won lost"`
	QuoteDate        *string      `json:"quoteDate" validate:"omitempty,datetime=2006-01-02"`
	ResponseDeadline *string      `json:"responseDeadline" validate:"omitempty,datetime=2006-01-02"`
	Description      *string      `json:"description" validate:"omitempty,max=2000"`
	Notes            *string      `json:"notes" validate:"omitempty,max=2000"`
}

// CreateCustomerRequest is the payload for creating a customer
type CreateCustomerRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email,max=254"`
	Phone      string `json:"phone" validate:"max=50"`
	Address    string `json:"address" validate:"max=200"`
	PostalCode string `json:"postalCode" validate:"max=20"`
	City       string `json:"city" validate:"max=100"`
}

// UpdateCustomerRequest is a partial update; nil fields are left untouched
type UpdateCustomerRequest struct {
	Name      *string   `json:"name" validate:"omitempty,min=1,max=200"`
	Email     *string   `json:"email" validate:"omitempty,email,max=254"`
	Phone     *string   `json:"phone" validate:"omitempty,max=50"`
	Addresses *[]string `json:"addresses" validate:"omitempty,dive,max=300"`
}

// InitAccountRequest carries the identity used to seed a new account
type InitAccountRequest struct {
	Name        string `json:"name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	CompanyName string `json:"companyName" validate:"max=200"`
}

// AccountInitResult reports what Initialize did
type AccountInitResult struct {
	Created bool `json:"created"`
}

// ReconcileResult reports how many customers had their counters corrected
type ReconcileResult struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
}

// DashboardKPIs wraps the KPI cards
type DashboardKPIs struct {
	KPIs []KPI `json:"kpis"`
}
