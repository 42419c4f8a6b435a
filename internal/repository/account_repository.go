package repository

import (
	"context"
	"sort"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

type AccountRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewAccountRepository(store docstore.Store, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{store: store, logger: logger}
}

func (r *AccountRepository) GetProfile(ctx context.Context, accountID string) (*domain.AccountProfile, error) {
	var profile domain.AccountProfile
	if err := readDocument(ctx, r.store, AccountPath(accountID), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateProfile writes the profile document with creation and login time set by the store
func (r *AccountRepository) CreateProfile(ctx context.Context, accountID string) error {
	return r.store.Write(ctx, AccountPath(accountID), map[string]any{
		"createdAt": docstore.ServerTimestamp,
		"lastLogin": docstore.ServerTimestamp,
	})
}

func (r *AccountRepository) TouchLastLogin(ctx context.Context, accountID string) error {
	return r.store.Patch(ctx, AccountPath(accountID), map[string]any{
		"lastLogin": docstore.ServerTimestamp,
	})
}

// ListIDs returns the ids of every account with a profile document, sorted
func (r *AccountRepository) ListIDs(ctx context.Context) ([]string, error) {
	snap, err := r.store.Read(ctx, AccountsPath())
	if err != nil {
		return nil, err
	}
	children, err := snap.Children()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(children))
	for id := range children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
