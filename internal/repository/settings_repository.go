package repository

import (
	"context"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

type BusinessSettingsRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewBusinessSettingsRepository(store docstore.Store, logger *zap.Logger) *BusinessSettingsRepository {
	return &BusinessSettingsRepository{store: store, logger: logger}
}

func (r *BusinessSettingsRepository) Get(ctx context.Context, accountID string) (*domain.BusinessSettings, error) {
	var settings domain.BusinessSettings
	if err := readDocument(ctx, r.store, metaPath(accountID, businessSettingsDoc), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save overwrites the business settings. createdAt is set by the store when the
// settings carry none.
func (r *BusinessSettingsRepository) Save(ctx context.Context, accountID string, settings *domain.BusinessSettings) error {
	fields, err := toFields(settings)
	if err != nil {
		return err
	}
	if settings.CreatedAt == 0 {
		fields["createdAt"] = docstore.ServerTimestamp
	}
	fields["lastUpdated"] = docstore.ServerTimestamp
	return r.store.Write(ctx, metaPath(accountID, businessSettingsDoc), fields)
}

// Patch merges fields into the business settings and bumps lastUpdated
func (r *BusinessSettingsRepository) Patch(ctx context.Context, accountID string, fields map[string]any) error {
	return r.store.Patch(ctx, metaPath(accountID, businessSettingsDoc), withLastUpdated(fields))
}

type UserSettingsRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewUserSettingsRepository(store docstore.Store, logger *zap.Logger) *UserSettingsRepository {
	return &UserSettingsRepository{store: store, logger: logger}
}

func (r *UserSettingsRepository) Get(ctx context.Context, accountID string) (*domain.UserSettings, error) {
	var settings domain.UserSettings
	if err := readDocument(ctx, r.store, metaPath(accountID, userSettingsDoc), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *UserSettingsRepository) Save(ctx context.Context, accountID string, settings *domain.UserSettings) error {
	fields, err := toFields(settings)
	if err != nil {
		return err
	}
	fields["lastUpdated"] = docstore.ServerTimestamp
	return r.store.Write(ctx, metaPath(accountID, userSettingsDoc), fields)
}

func (r *UserSettingsRepository) Patch(ctx context.Context, accountID string, fields map[string]any) error {
	return r.store.Patch(ctx, metaPath(accountID, userSettingsDoc), withLastUpdated(fields))
}

func withLastUpdated(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["lastUpdated"] = docstore.ServerTimestamp
	return out
}
