package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

// DefaultStaleAfter is how long a cached summary is served before it is recomputed
const DefaultStaleAfter = time.Hour

type AnalyticsService struct {
	store         Pinger
	engine        *analytics.Engine
	quoteRepo     *repository.QuoteRepository
	customerRepo  *repository.CustomerRepository
	analyticsRepo *repository.AnalyticsRepository
	metrics       *metrics.AnalyticsMetrics
	staleAfter    time.Duration
	logger        *zap.Logger
}

func NewAnalyticsService(
	store Pinger,
	engine *analytics.Engine,
	quoteRepo *repository.QuoteRepository,
	customerRepo *repository.CustomerRepository,
	analyticsRepo *repository.AnalyticsRepository,
	m *metrics.AnalyticsMetrics,
	staleAfter time.Duration,
	logger *zap.Logger,
) *AnalyticsService {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &AnalyticsService{
		store:         store,
		engine:        engine,
		quoteRepo:     quoteRepo,
		customerRepo:  customerRepo,
		analyticsRepo: analyticsRepo,
		metrics:       m,
		staleAfter:    staleAfter,
		logger:        logger,
	}
}

// Get returns the cached summary, recomputing it when it is missing or stale
func (s *AnalyticsService) Get(ctx context.Context, accountID string) (*domain.Analytics, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	return s.summary(ctx, accountID)
}

// Refresh recomputes and stores the summary unconditionally
func (s *AnalyticsService) Refresh(ctx context.Context, accountID string) (*domain.Analytics, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	return s.recompute(ctx, accountID, metrics.TriggerRefresh)
}

// RefreshIfStale recomputes the summary when the cache is missing or stale and
// reports whether it did.
func (s *AnalyticsService) RefreshIfStale(ctx context.Context, accountID string) (bool, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return false, err
	}
	cached, err := s.analyticsRepo.Get(ctx, accountID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to get analytics: %w", err)
	}
	if err == nil && !s.isStale(cached) {
		return false, nil
	}
	if _, err := s.recompute(ctx, accountID, metrics.TriggerJob); err != nil {
		return false, err
	}
	return true, nil
}

// GetForPeriod narrows the summary to a time period. Daily windows are built from
// the current quotes.
func (s *AnalyticsService) GetForPeriod(ctx context.Context, accountID string, period domain.TimePeriod) (*domain.Analytics, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	summary, err := s.summary(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, accountID, summary, period)
}

// View narrows an already computed summary, typically one delivered by a live
// subscription.
func (s *AnalyticsService) View(ctx context.Context, accountID string, summary *domain.Analytics, period domain.TimePeriod) (*domain.Analytics, error) {
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
	}
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	return s.view(ctx, accountID, summary, period)
}

func (s *AnalyticsService) view(ctx context.Context, accountID string, summary *domain.Analytics, period domain.TimePeriod) (*domain.Analytics, error) {
	var quotes []domain.Quote
	if period.Days() > 0 {
		var err error
		if quotes, err = s.quoteRepo.List(ctx, accountID); err != nil {
			return nil, fmt.Errorf("failed to list quotes: %w", err)
		}
	}
	view := s.engine.FilterByPeriod(*summary, period, quotes)
	return &view, nil
}

func (s *AnalyticsService) summary(ctx context.Context, accountID string) (*domain.Analytics, error) {
	cached, err := s.analyticsRepo.Get(ctx, accountID)
	switch {
	case err == nil && !s.isStale(cached):
		return cached, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}
	return s.recompute(ctx, accountID, metrics.TriggerRead)
}

func (s *AnalyticsService) isStale(summary *domain.Analytics) bool {
	if summary.LastUpdated == 0 {
		return true
	}
	return s.engine.Now().Sub(domain.MillisToTime(summary.LastUpdated)) > s.staleAfter
}

func (s *AnalyticsService) recompute(ctx context.Context, accountID, trigger string) (summary *domain.Analytics, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRecompute(trigger, time.Since(start), err)
	}()

	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	customers, err := s.customerRepo.Count(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}

	result := s.engine.Aggregate(quotes, customers)
	if err := s.analyticsRepo.Save(ctx, accountID, &result); err != nil {
		return nil, fmt.Errorf("failed to save analytics: %w", err)
	}

	logger.WithAccount(s.logger, accountID, "").Debug("analytics recomputed",
		zap.String("trigger", trigger),
		zap.Int("quotes", result.TotalQuotes),
		zap.Duration("duration", time.Since(start)))
	return &result, nil
}
