package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCustomerService_CreateNormalizes(t *testing.T) {
	f := newFixture(t)

	c, err := f.customerService.Create(context.Background(), accountID, &domain.CreateCustomerRequest{
		Name:       "  Kari Nordmann ",
		Email:      " Kari@Example.NO ",
		Address:    "Storgata 1",
		PostalCode: "0155",
		City:       "Oslo",
	})

	require.NoError(t, err)
	assert.Equal(t, "Kari Nordmann", c.Name)
	assert.Equal(t, "kari@example.no", c.Email)
	assert.Equal(t, []string{"Storgata 1, 0155 Oslo"}, c.Addresses)
	assert.Zero(t, c.QuoteCount)
	assert.NotNil(t, c.CreatedAt)
}

func TestJoinAddress(t *testing.T) {
	tests := []struct {
		address, postal, city string
		want                  string
	}{
		{"Storgata 1", "0155", "Oslo", "Storgata 1, 0155 Oslo"},
		{"Storgata 1", "", "Oslo", "Storgata 1, Oslo"},
		{"", "5003", "Bergen", "5003 Bergen"},
		{"Storgata 1", "", "", "Storgata 1"},
		{" ", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, service.JoinAddress(tt.address, tt.postal, tt.city))
		})
	}
}

func TestCustomerService_ListAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createCustomer(t, "Ola")
	_, err := f.customerService.Create(ctx, accountID, &domain.CreateCustomerRequest{Name: "Kari", Email: "kari@bygg.no"})
	require.NoError(t, err)

	all, err := f.customerService.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Kari", all[0].Name)

	byEmail, err := f.customerService.Search(ctx, accountID, "BYGG")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "Kari", byEmail[0].Name)

	none, err := f.customerService.Search(ctx, accountID, "per")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCustomerService_RenamePropagatesToQuotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	ola := f.createCustomer(t, "Ola")
	q1 := f.createQuote(t, kari.ID, 1000, domain.QuoteStatusPending, "2025-09-01")
	q2 := f.createQuote(t, ola.ID, 2000, domain.QuoteStatusPending, "2025-09-01")

	updated, err := f.customerService.Update(ctx, accountID, kari.ID, &domain.UpdateCustomerRequest{Name: strPtr("Kari Nordmann")})
	require.NoError(t, err)
	assert.Equal(t, "Kari Nordmann", updated.Name)

	got, err := f.quotes.GetByID(ctx, accountID, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kari Nordmann", got.CustomerName)
	assert.Equal(t, kari.ID, got.CustomerID)

	other, err := f.quotes.GetByID(ctx, accountID, q2.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ola", other.CustomerName)
}

func TestCustomerService_UpdateRejectsBlankName(t *testing.T) {
	f := newFixture(t)
	c := f.createCustomer(t, "Kari")

	_, err := f.customerService.Update(context.Background(), accountID, c.ID, &domain.UpdateCustomerRequest{Name: strPtr("  ")})

	assert.True(t, errors.Is(err, service.ErrInvalidInput))
}

func TestCustomerService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	q := f.createQuote(t, kari.ID, 1000, domain.QuoteStatusPending, "2025-09-01")

	err := f.customerService.Delete(ctx, accountID, kari.ID)
	require.True(t, errors.Is(err, service.ErrCustomerHasQuotes))
	assert.Equal(t, domain.CategoryConflict, service.Categorize(err))

	require.NoError(t, f.quoteService.Delete(ctx, accountID, q.ID))
	require.NoError(t, f.customerService.Delete(ctx, accountID, kari.ID))

	_, err = f.customerService.GetByID(ctx, accountID, kari.ID)
	assert.True(t, errors.Is(err, service.ErrCustomerNotFound))
}

func TestCustomerService_ApplyQuoteTransition(t *testing.T) {
	tests := []struct {
		name   string
		before *domain.Quote
		after  *domain.Quote
		wantA  [2]int
		wantB  [2]int
		startA [2]int
		startB [2]int
	}{
		{
			name:  "create pending",
			after: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusPending},
			wantA: [2]int{1, 0},
		},
		{
			name:  "create won",
			after: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			wantA: [2]int{1, 1},
		},
		{
			name:   "pending to won",
			startA: [2]int{1, 0},
			before: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusPending},
			after:  &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			wantA:  [2]int{1, 1},
		},
		{
			name:   "won to lost",
			startA: [2]int{2, 1},
			before: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			after:  &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusLost},
			wantA:  [2]int{2, 0},
		},
		{
			name:   "customer change moves counters",
			startA: [2]int{1, 1},
			before: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			after:  &domain.Quote{CustomerID: "b", Status: domain.QuoteStatusWon},
			wantA:  [2]int{0, 0},
			wantB:  [2]int{1, 1},
		},
		{
			name:   "delete won",
			startA: [2]int{3, 2},
			before: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			wantA:  [2]int{2, 1},
		},
		{
			name:   "counters never go negative",
			before: &domain.Quote{CustomerID: "a", Status: domain.QuoteStatusWon},
			wantA:  [2]int{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			for id, start := range map[string][2]int{"a": tt.startA, "b": tt.startB} {
				require.NoError(t, f.customerRepo.Create(ctx, accountID, &domain.Customer{ID: id, Name: id}))
				require.NoError(t, f.customerRepo.SetCounters(ctx, accountID, id, start[0], start[1], false))
			}

			require.NoError(t, f.customerService.ApplyQuoteTransition(ctx, accountID, tt.before, tt.after))

			q, w := f.counters(t, "a")
			assert.Equal(t, tt.wantA, [2]int{q, w}, "customer a")
			q, w = f.counters(t, "b")
			assert.Equal(t, tt.wantB, [2]int{q, w}, "customer b")
		})
	}
}

func TestCustomerService_ApplyQuoteTransitionSkipsMissingCustomer(t *testing.T) {
	f := newFixture(t)

	err := f.customerService.ApplyQuoteTransition(context.Background(), accountID, nil,
		&domain.Quote{CustomerID: "gone", Status: domain.QuoteStatusWon})

	assert.NoError(t, err)
}

func TestCustomerService_Reconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	ola := f.createCustomer(t, "Ola")
	f.createQuote(t, kari.ID, 1000, domain.QuoteStatusWon, "2025-09-01")
	f.createQuote(t, kari.ID, 1000, domain.QuoteStatusPending, "2025-09-02")
	// a legacy quote that only names its customer
	require.NoError(t, f.quotes.Create(ctx, accountID, &domain.Quote{ID: "legacy", CustomerName: "ola", Status: domain.QuoteStatusWon, QuoteDate: "2025-08-01"}))
	// drift
	require.NoError(t, f.customerRepo.SetCounters(ctx, accountID, kari.ID, 7, 7, false))

	result, err := f.customerService.Reconcile(ctx, accountID)

	require.NoError(t, err)
	assert.Equal(t, &domain.ReconcileResult{Checked: 2, Corrected: 2}, result)
	q, w := f.counters(t, kari.ID)
	assert.Equal(t, [2]int{2, 1}, [2]int{q, w})
	q, w = f.counters(t, ola.ID)
	assert.Equal(t, [2]int{1, 1}, [2]int{q, w})

	again, err := f.customerService.Reconcile(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, again.Corrected)
}

func TestCustomerService_Precheck(t *testing.T) {
	f := newFixture(t)

	_, err := f.customerService.List(context.Background(), "")
	assert.Equal(t, domain.CategoryAuthorization, service.Categorize(err))

	require.NoError(t, f.store.Close())
	_, err = f.customerService.List(context.Background(), accountID)
	assert.Equal(t, domain.CategoryConnectivity, service.Categorize(err))
}
