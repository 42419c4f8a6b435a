package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

// businessFields lists the JSON fields a partial update may change
var businessFields = map[string]bool{
	"companyName": true, "organizationNumber": true, "address": true, "postalCode": true,
	"city": true, "phone": true, "email": true, "website": true,
	"foundedYear": true, "employeeCount": true, "industry": true, "businessType": true,
	"annualRevenue": true, "serviceAreas": true, "specializations": true,
	"logoUrl": true, "primaryColor": true, "secondaryColor": true, "brandDescription": true,
	"currency": true, "vatRate": true, "defaultPaymentTerms": true, "bankAccount": true,
	"quoteValidityDays": true, "quotePrefix": true, "invoicePrefix": true, "defaultQuoteNotes": true,
	"aiEnabled": true, "marketSegment": true, "competitorAnalysis": true, "pricingStrategy": true,
}

type BusinessService struct {
	store  Pinger
	repo   *repository.BusinessSettingsRepository
	engine *analytics.Engine
	logger *zap.Logger
}

func NewBusinessService(store Pinger, repo *repository.BusinessSettingsRepository, engine *analytics.Engine, logger *zap.Logger) *BusinessService {
	return &BusinessService{store: store, repo: repo, engine: engine, logger: logger}
}

func (s *BusinessService) Get(ctx context.Context, accountID string) (*domain.BusinessSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	return s.get(ctx, accountID)
}

// Save replaces the business settings, keeping the original creation time
func (s *BusinessService) Save(ctx context.Context, accountID string, settings *domain.BusinessSettings) (*domain.BusinessSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	existing, err := s.get(ctx, accountID)
	switch {
	case err == nil:
		settings.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrSettingsNotFound):
		settings.CreatedAt = 0
	default:
		return nil, err
	}
	normalizeBusinessSettings(settings)
	if !settings.BusinessType.IsValid() || !settings.PricingStrategy.IsValid() {
		return nil, fmt.Errorf("%w: unknown business type or pricing strategy", ErrInvalidInput)
	}

	if err := s.repo.Save(ctx, accountID, settings); err != nil {
		return nil, fmt.Errorf("failed to save business settings: %w", err)
	}
	return s.get(ctx, accountID)
}

// Update merges the given fields. Unknown fields are rejected.
func (s *BusinessService) Update(ctx context.Context, accountID string, fields map[string]any) (*domain.BusinessSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	for k := range fields {
		if !businessFields[k] {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidInput, k)
		}
	}
	existing, err := s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var merged domain.BusinessSettings
	if err := mergeInto(existing, fields, &merged); err != nil {
		return nil, err
	}
	if !merged.BusinessType.IsValid() || !merged.PricingStrategy.IsValid() {
		return nil, fmt.Errorf("%w: unknown business type or pricing strategy", ErrInvalidInput)
	}
	if err := s.repo.Patch(ctx, accountID, fields); err != nil {
		return nil, fmt.Errorf("failed to update business settings: %w", err)
	}
	return s.get(ctx, accountID)
}

// Initialize stores the default settings unless the account already has some
func (s *BusinessService) Initialize(ctx context.Context, accountID, companyName, email string) (*domain.BusinessSettings, bool, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, false, err
	}
	existing, err := s.get(ctx, accountID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return nil, false, err
	}

	defaults := domain.DefaultBusinessSettings(strings.TrimSpace(companyName), NormalizeEmail(email), s.engine.Now())
	if err := s.repo.Save(ctx, accountID, &defaults); err != nil {
		return nil, false, fmt.Errorf("failed to initialize business settings: %w", err)
	}
	logger.WithAccount(s.logger, accountID, email).Info("business settings initialized")

	created, err := s.get(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Context returns a plain-text summary of the business, empty when the account
// has no settings.
func (s *BusinessService) Context(ctx context.Context, accountID string) (string, error) {
	settings, err := s.Get(ctx, accountID)
	if errors.Is(err, ErrSettingsNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return BusinessContext(settings), nil
}

// BusinessContext renders the settings as the Norwegian summary used for prompts
func BusinessContext(settings *domain.BusinessSettings) string {
	lines := []string{
		"Bedrift: " + settings.CompanyName,
		"Bransje: " + settings.Industry,
		"Ansatte: " + strconv.Itoa(settings.EmployeeCount),
		"Etablert: " + strconv.Itoa(settings.FoundedYear),
		"Spesialiseringer: " + strings.Join(settings.Specializations, ", "),
		"Serviceområder: " + strings.Join(settings.ServiceAreas, ", "),
		"Prisstrategi: " + string(settings.PricingStrategy),
		"Markedssegment: " + settings.MarketSegment,
	}
	return strings.Join(lines, "\n")
}

func (s *BusinessService) get(ctx context.Context, accountID string) (*domain.BusinessSettings, error) {
	settings, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: business settings", ErrSettingsNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business settings: %w", err)
	}
	return settings, nil
}

func normalizeBusinessSettings(settings *domain.BusinessSettings) {
	settings.Email = NormalizeEmail(settings.Email)
	if settings.ServiceAreas == nil {
		settings.ServiceAreas = []string{}
	}
	if settings.Specializations == nil {
		settings.Specializations = []string{}
	}
	if settings.Currency == "" {
		settings.Currency = "NOK"
	}
}
