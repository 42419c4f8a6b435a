package service

import (
	"context"
	"fmt"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

type DashboardService struct {
	store         Pinger
	engine        *analytics.Engine
	analytics     *AnalyticsService
	quoteRepo     *repository.QuoteRepository
	customerRepo  *repository.CustomerRepository
	activityLimit int
	logger        *zap.Logger
}

func NewDashboardService(
	store Pinger,
	engine *analytics.Engine,
	analyticsService *AnalyticsService,
	quoteRepo *repository.QuoteRepository,
	customerRepo *repository.CustomerRepository,
	activityLimit int,
	logger *zap.Logger,
) *DashboardService {
	if activityLimit <= 0 {
		activityLimit = analytics.DefaultActivityLimit
	}
	return &DashboardService{
		store:         store,
		engine:        engine,
		analytics:     analyticsService,
		quoteRepo:     quoteRepo,
		customerRepo:  customerRepo,
		activityLimit: activityLimit,
		logger:        logger,
	}
}

// KPIs returns the key figure cards of the dashboard
func (s *DashboardService) KPIs(ctx context.Context, accountID string) (*domain.DashboardKPIs, error) {
	summary, err := s.analytics.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.DashboardKPIs{KPIs: s.engine.KPIs(*summary)}, nil
}

// Chart returns revenue and quoted value for the trailing twelve months
func (s *DashboardService) Chart(ctx context.Context, accountID string) ([]domain.ChartPoint, error) {
	summary, err := s.analytics.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.engine.ChartData(*summary), nil
}

// Activity returns the most recent quote and customer events. A limit of zero
// uses the configured default.
func (s *DashboardService) Activity(ctx context.Context, accountID string, limit int) ([]domain.ActivityItem, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.activityLimit
	}
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	customers, err := s.customerRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return s.engine.ActivityFeed(quotes, customers, limit), nil
}
