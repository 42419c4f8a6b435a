package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

var userSettingsFields = map[string]bool{
	"name": true, "email": true, "phone": true, "notifications": true,
	"emailNotifications": true, "language": true, "timezone": true,
}

// SettingsService manages the per-user preferences of an account
type SettingsService struct {
	store  Pinger
	repo   *repository.UserSettingsRepository
	logger *zap.Logger
}

func NewSettingsService(store Pinger, repo *repository.UserSettingsRepository, logger *zap.Logger) *SettingsService {
	return &SettingsService{store: store, repo: repo, logger: logger}
}

func (s *SettingsService) Get(ctx context.Context, accountID string) (*domain.UserSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	return s.get(ctx, accountID)
}

func (s *SettingsService) Save(ctx context.Context, accountID string, settings *domain.UserSettings) (*domain.UserSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	settings.Email = NormalizeEmail(settings.Email)
	settings.Name = strings.TrimSpace(settings.Name)
	if err := s.repo.Save(ctx, accountID, settings); err != nil {
		return nil, fmt.Errorf("failed to save user settings: %w", err)
	}
	return s.get(ctx, accountID)
}

// Update merges the given fields. Unknown fields are rejected.
func (s *SettingsService) Update(ctx context.Context, accountID string, fields map[string]any) (*domain.UserSettings, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	for k := range fields {
		if !userSettingsFields[k] {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidInput, k)
		}
	}
	existing, err := s.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var merged domain.UserSettings
	if err := mergeInto(existing, fields, &merged); err != nil {
		return nil, err
	}
	if email, ok := fields["email"].(string); ok {
		fields["email"] = NormalizeEmail(email)
	}
	if err := s.repo.Patch(ctx, accountID, fields); err != nil {
		return nil, fmt.Errorf("failed to update user settings: %w", err)
	}
	return s.get(ctx, accountID)
}

// Initialize stores the default settings unless the account already has some
func (s *SettingsService) Initialize(ctx context.Context, accountID, name, email string) (*domain.UserSettings, bool, error) {
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
	defaults := domain.DefaultUserSettings(strings.TrimSpace(name), NormalizeEmail(email))
	if err := s.repo.Save(ctx, accountID, &defaults); err != nil {
		return nil, false, fmt.Errorf("failed to initialize user settings: %w", err)
	}
	created, err := s.get(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *SettingsService) get(ctx context.Context, accountID string) (*domain.UserSettings, error) {
	settings, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user settings", ErrSettingsNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	return settings, nil
}

// mergeInto applies fields to current and decodes the result into out, which
// rejects values of the wrong type.
func mergeInto(current any, fields map[string]any, out any) error {
	raw, err := json.Marshal(current)
	if err != nil {
		return err
	}
	var merged map[string]any
	if err := json.Unmarshal(raw, &merged); err != nil {
		return err
	}
	for k, v := range fields {
		merged[k] = v
	}
	if raw, err = json.Marshal(merged); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
