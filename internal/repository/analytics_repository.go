package repository

import (
	"context"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

// AnalyticsRepository stores the cached analytics summary of an account
type AnalyticsRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewAnalyticsRepository(store docstore.Store, logger *zap.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{store: store, logger: logger}
}

// Get returns the cached summary or ErrNotFound
func (r *AnalyticsRepository) Get(ctx context.Context, accountID string) (*domain.Analytics, error) {
	var summary domain.Analytics
	if err := readDocument(ctx, r.store, metaPath(accountID, analyticsDoc), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Save replaces the cached summary
func (r *AnalyticsRepository) Save(ctx context.Context, accountID string, summary *domain.Analytics) error {
	stored := *summary
	stored.DailySeries = nil
	if stored.MonthlySeries == nil {
		stored.MonthlySeries = []domain.MonthBucket{}
	}
	if stored.PerJobTypeStats == nil {
		stored.PerJobTypeStats = []domain.JobTypeStats{}
	}
	return r.store.Write(ctx, metaPath(accountID, analyticsDoc), stored)
}
