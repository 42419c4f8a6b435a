package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"go.uber.org/zap"
)

type CustomerRepository struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewCustomerRepository(store docstore.Store, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{store: store, logger: logger}
}

// Create stores a new customer with zero counters. createdAt and lastActivity are
// set by the store.
func (r *CustomerRepository) Create(ctx context.Context, accountID string, customer *domain.Customer) error {
	if customer.ID == "" {
		customer.ID = r.store.GenerateID(CustomersPath(accountID))
	}
	if customer.Addresses == nil {
		customer.Addresses = []string{}
	}
	customer.QuoteCount, customer.WonCount = 0, 0

	fields, err := toFields(customer)
	if err != nil {
		return err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["lastActivity"] = docstore.ServerTimestamp
	return r.store.Write(ctx, CustomersPath(accountID).Child(customer.ID), fields)
}

func (r *CustomerRepository) GetByID(ctx context.Context, accountID, id string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := readDocument(ctx, r.store, CustomersPath(accountID).Child(id), &customer); err != nil {
		return nil, err
	}
	customer.ID = id
	return &customer, nil
}

// List returns every customer of the account ordered by name
func (r *CustomerRepository) List(ctx context.Context, accountID string) ([]domain.Customer, error) {
	snap, err := r.store.Read(ctx, CustomersPath(accountID))
	if err != nil {
		return nil, err
	}
	customers, err := decodeChildren(snap, r.logger, setCustomerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(customers, func(i, j int) bool {
		a, b := strings.ToLower(customers[i].Name), strings.ToLower(customers[j].Name)
		if a != b {
			return a < b
		}
		return customers[i].ID < customers[j].ID
	})
	return customers, nil
}

// Count returns the number of customers of the account
func (r *CustomerRepository) Count(ctx context.Context, accountID string) (int, error) {
	snap, err := r.store.Read(ctx, CustomersPath(accountID))
	if err != nil {
		return 0, err
	}
	children, err := snap.Children()
	if err != nil {
		return 0, err
	}
	return len(children), nil
}

// Patch merges profile fields into a customer. Counter fields are rejected; use
// SetCounters.
func (r *CustomerRepository) Patch(ctx context.Context, accountID, id string, fields map[string]any) error {
	for _, k := range []string{"quoteCount", "wonCount"} {
		if _, ok := fields[k]; ok {
			return fmt.Errorf("%w: %s is maintained by quote transitions", docstore.ErrInvalidData, k)
		}
	}
	return r.store.Patch(ctx, CustomersPath(accountID).Child(id), fields)
}

// SetCounters stores the quote counters of a customer. When touch is set the
// last activity time is bumped as well.
func (r *CustomerRepository) SetCounters(ctx context.Context, accountID, id string, quoteCount, wonCount int, touch bool) error {
	fields := map[string]any{
		"quoteCount": max(quoteCount, 0),
		"wonCount":   max(wonCount, 0),
	}
	if touch {
		fields["lastActivity"] = docstore.ServerTimestamp
	}
	return r.store.Patch(ctx, CustomersPath(accountID).Child(id), fields)
}

func (r *CustomerRepository) Delete(ctx context.Context, accountID, id string) error {
	return r.store.Remove(ctx, CustomersPath(accountID).Child(id))
}

// Watch delivers the full customer list on subscription and after every change
func (r *CustomerRepository) Watch(ctx context.Context, accountID string, onChange func([]domain.Customer, error)) (docstore.Subscription, error) {
	sub, err := watchCollection(ctx, r.store, CustomersPath(accountID), r.logger, setCustomerID, onChange)
	if err != nil {
		return nil, fmt.Errorf("failed to watch customers: %w", err)
	}
	return sub, nil
}

func setCustomerID(c *domain.Customer, id string) {
	c.ID = id
}
