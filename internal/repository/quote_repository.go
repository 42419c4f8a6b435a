package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

type QuoteRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewQuoteRepository(store docstore.Store, logger *zap.Logger) *QuoteRepository {
	return &QuoteRepository{store: store, logger: logger}
}

// NewID reserves an id for a quote that has not been written yet
func (r *QuoteRepository) NewID(accountID string) string {
	return r.store.GenerateID(QuotesPath(accountID))
}

// Create stores a new quote. An empty ID is generated; createdAt and updatedAt
// are set by the store.
func (r *QuoteRepository) Create(ctx context.Context, accountID string, quote *domain.Quote) error {
	if quote.ID == "" {
		quote.ID = r.NewID(accountID)
	}
	fields, err := toFields(quote)
	if err != nil {
		return err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp
	return r.store.Write(ctx, QuotesPath(accountID).Child(quote.ID), fields)
}

func (r *QuoteRepository) GetByID(ctx context.Context, accountID, id string) (*domain.Quote, error) {
	var quote domain.Quote
	if err := readDocument(ctx, r.store, QuotesPath(accountID).Child(id), &quote); err != nil {
		return nil, err
	}
	quote.ID = id
	return &quote, nil
}

// List returns every quote of the account, newest first
func (r *QuoteRepository) List(ctx context.Context, accountID string) ([]domain.Quote, error) {
	snap, err := r.store.Read(ctx, QuotesPath(accountID))
	if err != nil {
		return nil, err
	}
	quotes, err := decodeChildren(snap, r.logger, setQuoteID)
	if err != nil {
		return nil, err
	}
	SortQuotesNewestFirst(quotes)
	return quotes, nil
}

// Update overwrites a quote, keeping its creation time
func (r *QuoteRepository) Update(ctx context.Context, accountID string, quote *domain.Quote) error {
	fields, err := toFields(quote)
	if err != nil {
		return err
	}
	fields["updatedAt"] = docstore.ServerTimestamp
	return r.store.Write(ctx, QuotesPath(accountID).Child(quote.ID), fields)
}

// Patch merges fields into a quote and bumps updatedAt
func (r *QuoteRepository) Patch(ctx context.Context, accountID, id string, fields map[string]any) error {
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["updatedAt"] = docstore.ServerTimestamp
	return r.store.Patch(ctx, QuotesPath(accountID).Child(id), patch)
}

func (r *QuoteRepository) Delete(ctx context.Context, accountID, id string) error {
	return r.store.Remove(ctx, QuotesPath(accountID).Child(id))
}

// Watch delivers the full quote list on subscription and after every change
func (r *QuoteRepository) Watch(ctx context.Context, accountID string, onChange func([]domain.Quote, error)) (docstore.Subscription, error) {
	sub, err := watchCollection(ctx, r.store, QuotesPath(accountID), r.logger, setQuoteID, onChange)
	if err != nil {
		return nil, fmt.Errorf("failed to watch quotes: %w", err)
	}
	return sub, nil
}

// SortQuotesNewestFirst orders quotes by createdAt descending, then by id
func SortQuotesNewestFirst(quotes []domain.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		if quotes[i].CreatedAt != quotes[j].CreatedAt {
			return quotes[i].CreatedAt > quotes[j].CreatedAt
		}
		return quotes[i].ID < quotes[j].ID
	})
}

func setQuoteID(q *domain.Quote, id string) {
	q.ID = id
}
