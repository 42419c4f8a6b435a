package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/mapper"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

const defaultVATRate = 25.0

type QuoteService struct {
	store        Pinger
	quoteRepo    *repository.QuoteRepository
	businessRepo *repository.BusinessSettingsRepository
	customers    *CustomerService
	logger       *zap.Logger
}

func NewQuoteService(
	store Pinger,
	quoteRepo *repository.QuoteRepository,
	businessRepo *repository.BusinessSettingsRepository,
	customers *CustomerService,
	logger *zap.Logger,
) *QuoteService {
	return &QuoteService{
		store:        store,
		quoteRepo:    quoteRepo,
		businessRepo: businessRepo,
		customers:    customers,
		logger:       logger,
	}
}

// pricing carries the business settings a quote DTO needs
type pricing struct {
	vatRate      float64
	currency     string
	validityDays int
}

func (s *QuoteService) Create(ctx context.Context, accountID string, req *domain.CreateQuoteRequest) (*domain.QuoteDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, fmt.Errorf("%w: customerId is required", ErrInvalidInput)
	}
	customer, err := s.customers.get(ctx, accountID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	p := s.pricing(ctx, accountID)

	status := req.Status
	if status == "" {
		status = domain.QuoteStatusPending
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	deadline, err := responseDeadline(req.QuoteDate, req.ResponseDeadline, p.validityDays)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		Project:          strings.TrimSpace(req.Project),
		JobType:          strings.TrimSpace(req.JobType),
		Amount:           req.Amount,
		Status:           status,
		QuoteDate:        req.QuoteDate,
		ResponseDeadline: deadline,
		Description:      req.Description,
		Notes:            req.Notes,
	}
	mapper.UpdateQuoteDenormalizedFields(quote, customer)

	if err := s.quoteRepo.Create(ctx, accountID, quote); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}
	s.applyTransition(ctx, accountID, nil, quote)

	created, err := s.get(ctx, accountID, quote.ID)
	if err != nil {
		return nil, err
	}
	logger.WithAccount(s.logger, accountID, "").Info("quote created",
		zap.String("quote_id", created.ID),
		zap.String("customer_id", created.CustomerID),
		zap.String("status", string(created.Status)))

	dto := mapper.ToQuoteDTO(created, p.vatRate, p.currency)
	return &dto, nil
}

func (s *QuoteService) GetByID(ctx context.Context, accountID, id string) (*domain.QuoteDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	quote, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	p := s.pricing(ctx, accountID)
	dto := mapper.ToQuoteDTO(quote, p.vatRate, p.currency)
	return &dto, nil
}

// List returns every quote, newest first
func (s *QuoteService) List(ctx context.Context, accountID string) ([]domain.QuoteDTO, error) {
	return s.list(ctx, accountID, func(*domain.Quote) bool { return true })
}

// ListByStatus returns the quotes with the given status, newest first
func (s *QuoteService) ListByStatus(ctx context.Context, accountID string, status domain.QuoteStatus) ([]domain.QuoteDTO, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.list(ctx, accountID, func(q *domain.Quote) bool { return q.Status == status })
}

// Search matches customer name or project case-insensitively
func (s *QuoteService) Search(ctx context.Context, accountID, query string) ([]domain.QuoteDTO, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	return s.list(ctx, accountID, func(q *domain.Quote) bool {
		return term == "" ||
			strings.Contains(strings.ToLower(q.CustomerName), term) ||
			strings.Contains(strings.ToLower(q.Project), term)
	})
}

// Stats counts quotes and sums their values per status
func (s *QuoteService) Stats(ctx context.Context, accountID string) (*domain.QuoteStats, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	stats := analytics.QuoteStatsOf(quotes)
	return &stats, nil
}

// Update applies a partial update and adjusts customer counters when the status
// or the customer changes.
func (s *QuoteService) Update(ctx context.Context, accountID, id string, req *domain.UpdateQuoteRequest) (*domain.QuoteDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	before, err := s.withResolvedCustomer(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	after := *before

	if req.CustomerID != nil && *req.CustomerID != before.CustomerID {
		customer, err := s.customers.get(ctx, accountID, *req.CustomerID)
		if err != nil {
			return nil, err
		}
		mapper.UpdateQuoteDenormalizedFields(&after, customer)
	}
	if req.Project != nil {
		after.Project = strings.TrimSpace(*req.Project)
	}
	if req.JobType != nil {
		after.JobType = strings.TrimSpace(*req.JobType)
	}
	if req.Amount != nil {
		if *req.Amount < 0 {
			return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
		}
		after.Amount = *req.Amount
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *req.Status)
		}
		after.Status = *req.Status
	}
	if req.QuoteDate != nil {
		if _, err := time.Parse(domain.DateLayout, *req.QuoteDate); err != nil {
			return nil, fmt.Errorf("%w: quoteDate must be YYYY-MM-DD", ErrInvalidInput)
		}
		after.QuoteDate = *req.QuoteDate
	}
	if req.ResponseDeadline != nil {
		if _, err := time.Parse(domain.DateLayout, *req.ResponseDeadline); err != nil && *req.ResponseDeadline != "" {
			return nil, fmt.Errorf("%w: responseDeadline must be YYYY-MM-DD", ErrInvalidInput)
		}
		after.ResponseDeadline = *req.ResponseDeadline
	}
	if req.Description != nil {
		after.Description = *req.Description
	}
	if req.Notes != nil {
		after.Notes = *req.Notes
	}

	if err := s.quoteRepo.Update(ctx, accountID, &after); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}
	s.applyTransition(ctx, accountID, before, &after)

	updated, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	p := s.pricing(ctx, accountID)
	dto := mapper.ToQuoteDTO(updated, p.vatRate, p.currency)
	return &dto, nil
}

func (s *QuoteService) Delete(ctx context.Context, accountID, id string) error {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return err
	}
	before, err := s.withResolvedCustomer(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := s.quoteRepo.Delete(ctx, accountID, id); err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}
	s.applyTransition(ctx, accountID, before, nil)

	logger.WithAccount(s.logger, accountID, "").Info("quote deleted", zap.String("quote_id", id))
	return nil
}

func (s *QuoteService) list(ctx context.Context, accountID string, keep func(*domain.Quote) bool) ([]domain.QuoteDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	p := s.pricing(ctx, accountID)
	dtos := make([]domain.QuoteDTO, 0, len(quotes))
	for i := range quotes {
		if keep(&quotes[i]) {
			dtos = append(dtos, mapper.ToQuoteDTO(&quotes[i], p.vatRate, p.currency))
		}
	}
	return dtos, nil
}

func (s *QuoteService) get(ctx context.Context, accountID, id string) (*domain.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, accountID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quote, nil
}

// withResolvedCustomer loads a quote and fills in the customer id of legacy
// quotes that only carry a customer name.
func (s *QuoteService) withResolvedCustomer(ctx context.Context, accountID, id string) (*domain.Quote, error) {
	quote, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if quote.CustomerID != "" {
		return quote, nil
	}
	customer, err := s.customers.resolveForQuote(ctx, accountID, "", quote.CustomerName)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			logger.WithAccount(s.logger, accountID, "").Warn("legacy quote has no matching customer",
				zap.String("quote_id", id),
				zap.String("customer_name", quote.CustomerName))
			return quote, nil
		}
		return nil, err
	}
	quote.CustomerID = customer.ID
	return quote, nil
}

// applyTransition updates customer counters after a quote write. The quote is
// already stored, so a failure is logged and left to the reconciliation job.
func (s *QuoteService) applyTransition(ctx context.Context, accountID string, before, after *domain.Quote) {
	if err := s.customers.ApplyQuoteTransition(ctx, accountID, before, after); err != nil {
		logger.WithAccount(s.logger, accountID, "").Error("failed to update customer counters",
			zap.Error(err))
	}
}

func (s *QuoteService) pricing(ctx context.Context, accountID string) pricing {
	p := pricing{vatRate: defaultVATRate, currency: mapper.DefaultCurrency}
	settings, err := s.businessRepo.Get(ctx, accountID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to load business settings, using default VAT",
				zap.String("account_id", accountID),
				zap.Error(err))
		}
		return p
	}
	p.vatRate = settings.VATRate
	if settings.Currency != "" {
		p.currency = settings.Currency
	}
	p.validityDays = settings.QuoteValidityDays
	return p
}

// responseDeadline defaults the deadline to quoteDate plus the validity period
func responseDeadline(quoteDate, deadline string, validityDays int) (string, error) {
	start, err := time.Parse(domain.DateLayout, quoteDate)
	if err != nil {
		return "", fmt.Errorf("%w: quoteDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	if deadline != "" {
		if _, err := time.Parse(domain.DateLayout, deadline); err != nil {
			return "", fmt.Errorf("%w: responseDeadline must be YYYY-MM-DD", ErrInvalidInput)
		}
		return deadline, nil
	}
	if validityDays <= 0 {
		validityDays = 30
	}
	return start.AddDate(0, 0, validityDays).Format(domain.DateLayout), nil
}
