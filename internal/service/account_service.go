package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

// AccountService bootstraps accounts on login
type AccountService struct {
	store         Pinger
	accountRepo   *repository.AccountRepository
	analyticsRepo *repository.AnalyticsRepository
	business      *BusinessService
	settings      *SettingsService
	engine        *analytics.Engine
	logger        *zap.Logger
}

func NewAccountService(
	store Pinger,
	accountRepo *repository.AccountRepository,
	analyticsRepo *repository.AnalyticsRepository,
	business *BusinessService,
	settings *SettingsService,
	engine *analytics.Engine,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		store:         store,
		accountRepo:   accountRepo,
		analyticsRepo: analyticsRepo,
		business:      business,
		settings:      settings,
		engine:        engine,
		logger:        logger,
	}
}

// Initialize creates the profile, an empty analytics summary and default settings
// on first login. Later logins only record the login time. Settings that are
// missing on an existing account are filled in.
func (s *AccountService) Initialize(ctx context.Context, accountID string, req *domain.InitAccountRequest) (*domain.AccountInitResult, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	log := logger.WithAccount(s.logger, accountID, req.Email)

	_, err := s.accountRepo.GetProfile(ctx, accountID)
	switch {
	case err == nil:
		if err := s.accountRepo.TouchLastLogin(ctx, accountID); err != nil {
			return nil, fmt.Errorf("failed to record login: %w", err)
		}
		if err := s.initializeSettings(ctx, accountID, req); err != nil {
			return nil, err
		}
		log.Debug("account login recorded")
		return &domain.AccountInitResult{Created: false}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := s.accountRepo.CreateProfile(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	placeholder := s.engine.Aggregate(nil, 0)
	if err := s.analyticsRepo.Save(ctx, accountID, &placeholder); err != nil {
		return nil, fmt.Errorf("failed to initialize analytics: %w", err)
	}
	if err := s.initializeSettings(ctx, accountID, req); err != nil {
		return nil, err
	}

	log.Info("account initialized")
	return &domain.AccountInitResult{Created: true}, nil
}

func (s *AccountService) initializeSettings(ctx context.Context, accountID string, req *domain.InitAccountRequest) error {
	if _, _, err := s.business.Initialize(ctx, accountID, req.CompanyName, req.Email); err != nil {
		return err
	}
	if _, _, err := s.settings.Initialize(ctx, accountID, req.Name, req.Email); err != nil {
		return err
	}
	return nil
}
