package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const accountID = "acc-1"

func newStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	store := docstore.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQuoteRepository_CreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())

	first := &domain.Quote{CustomerID: "c1", CustomerName: "Kari", Project: "Bad", Amount: 1000, Status: domain.QuoteStatusPending, QuoteDate: "2025-09-01"}
	require.NoError(t, repo.Create(ctx, accountID, first))
	require.NotEmpty(t, first.ID)

	got, err := repo.GetByID(ctx, accountID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Bad", got.Project)
	assert.NotZero(t, got.CreatedAt)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	time.Sleep(2 * time.Millisecond)
	second := &domain.Quote{ID: "q-explicit", CustomerID: "c1", Project: "Tak", Status: domain.QuoteStatusWon, QuoteDate: "2025-09-02"}
	require.NoError(t, repo.Create(ctx, accountID, second))

	quotes, err := repo.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "q-explicit", quotes[0].ID, "newest first")
	assert.Equal(t, first.ID, quotes[1].ID)
}

func TestQuoteRepository_GetMissing(t *testing.T) {
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())

	_, err := repo.GetByID(context.Background(), accountID, "nope")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestQuoteRepository_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())
	quote := &domain.Quote{ID: "q1", Project: "Bad", Status: domain.QuoteStatusPending, QuoteDate: "2025-09-01"}
	require.NoError(t, repo.Create(ctx, accountID, quote))
	stored, err := repo.GetByID(ctx, accountID, "q1")
	require.NoError(t, err)

	stored.Status = domain.QuoteStatusWon
	require.NoError(t, repo.Update(ctx, accountID, stored))

	updated, err := repo.GetByID(ctx, accountID, "q1")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusWon, updated.Status)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)
	assert.GreaterOrEqual(t, updated.UpdatedAt, stored.UpdatedAt)
}

func TestQuoteRepository_PatchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())
	require.NoError(t, repo.Create(ctx, accountID, &domain.Quote{ID: "q1", CustomerName: "Kari", QuoteDate: "2025-09-01"}))

	require.NoError(t, repo.Patch(ctx, accountID, "q1", map[string]any{"customerName": "Kari Nordmann"}))
	got, err := repo.GetByID(ctx, accountID, "q1")
	require.NoError(t, err)
	assert.Equal(t, "Kari Nordmann", got.CustomerName)

	require.NoError(t, repo.Delete(ctx, accountID, "q1"))
	_, err = repo.GetByID(ctx, accountID, "q1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestQuoteRepository_ListSkipsMalformedDocuments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	repo := repository.NewQuoteRepository(store, zap.NewNop())
	require.NoError(t, repo.Create(ctx, accountID, &domain.Quote{ID: "good", Amount: 10, QuoteDate: "2025-09-01"}))
	require.NoError(t, store.Write(ctx, repository.QuotesPath(accountID).Child("bad"), map[string]any{"amount": "ti tusen"}))

	quotes, err := repo.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "good", quotes[0].ID)
}

func TestQuoteRepository_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())
	require.NoError(t, repo.Create(ctx, "a", &domain.Quote{ID: "q1", QuoteDate: "2025-09-01"}))

	quotes, err := repo.List(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestQuoteRepository_Watch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQuoteRepository(newStore(t), zap.NewNop())

	var mu sync.Mutex
	var lengths []int
	sub, err := repo.Watch(ctx, accountID, func(quotes []domain.Quote, err error) {
		assert.NoError(t, err)
		mu.Lock()
		lengths = append(lengths, len(quotes))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, repo.Create(ctx, accountID, &domain.Quote{ID: "q1", QuoteDate: "2025-09-01"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lengths) > 0 && lengths[len(lengths)-1] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCustomerRepository(newStore(t), zap.NewNop())

	require.NoError(t, repo.Create(ctx, accountID, &domain.Customer{ID: "c2", Name: "ola", QuoteCount: 9}))
	require.NoError(t, repo.Create(ctx, accountID, &domain.Customer{ID: "c1", Name: "Kari"}))

	customers, err := repo.List(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Kari", customers[0].Name)
	assert.Equal(t, 0, customers[1].QuoteCount, "counters start at zero")
	assert.NotNil(t, customers[1].Addresses)

	count, err := repo.Count(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.SetCounters(ctx, accountID, "c1", 3, -1, true))
	c1, err := repo.GetByID(ctx, accountID, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, c1.QuoteCount)
	assert.Equal(t, 0, c1.WonCount, "counters never go negative")

	err = repo.Patch(ctx, accountID, "c1", map[string]any{"quoteCount": 100})
	assert.True(t, errors.Is(err, docstore.ErrInvalidData))

	require.NoError(t, repo.Patch(ctx, accountID, "c1", map[string]any{"phone": "99887766"}))
	c1, err = repo.GetByID(ctx, accountID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "99887766", c1.Phone)
	assert.Equal(t, 3, c1.QuoteCount)

	require.NoError(t, repo.Delete(ctx, accountID, "c1"))
	_, err = repo.GetByID(ctx, accountID, "c1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestAnalyticsRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAnalyticsRepository(newStore(t), zap.NewNop())

	_, err := repo.Get(ctx, accountID)
	require.True(t, errors.Is(err, repository.ErrNotFound))

	summary := &domain.Analytics{
		TotalQuotes: 3,
		WonQuotes:   2,
		WinRate:     67,
		DailySeries: []domain.DayBucket{{FullDate: "2025-09-24"}},
		LastUpdated: 1758715200000,
	}
	require.NoError(t, repo.Save(ctx, accountID, summary))

	got, err := repo.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 67, got.WinRate)
	assert.Equal(t, int64(1758715200000), got.LastUpdated)
	assert.Nil(t, got.DailySeries, "daily series is never cached")
	assert.NotNil(t, got.MonthlySeries)
	assert.Len(t, summary.DailySeries, 1, "input is not modified")
}

func TestSettingsRepositories(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	business := repository.NewBusinessSettingsRepository(store, zap.NewNop())
	user := repository.NewUserSettingsRepository(store, zap.NewNop())

	defaults := domain.DefaultBusinessSettings("Snekker AS", "post@snekker.no", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, business.Save(ctx, accountID, &defaults))
	require.NoError(t, business.Patch(ctx, accountID, map[string]any{"city": "Bergen"}))

	bs, err := business.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "Snekker AS", bs.CompanyName)
	assert.Equal(t, "Bergen", bs.City)
	assert.NotZero(t, bs.CreatedAt)
	assert.NotZero(t, bs.LastUpdated)

	_, err = user.Get(ctx, accountID)
	require.True(t, errors.Is(err, repository.ErrNotFound))
	us := domain.DefaultUserSettings("Kari", "kari@example.no")
	require.NoError(t, user.Save(ctx, accountID, &us))
	require.NoError(t, user.Patch(ctx, accountID, map[string]any{"language": "en"}))

	got, err := user.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, "Europe/Oslo", got.Timezone)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	repo := repository.NewAccountRepository(store, zap.NewNop())

	_, err := repo.GetProfile(ctx, "b")
	require.True(t, errors.Is(err, repository.ErrNotFound))

	require.NoError(t, repo.CreateProfile(ctx, "b"))
	require.NoError(t, repo.CreateProfile(ctx, "a"))
	// nested documents must not show up as accounts
	require.NoError(t, repository.NewQuoteRepository(store, zap.NewNop()).Create(ctx, "a", &domain.Quote{ID: "q1"}))

	profile, err := repo.GetProfile(ctx, "b")
	require.NoError(t, err)
	assert.NotZero(t, profile.CreatedAt)

	require.NoError(t, repo.TouchLastLogin(ctx, "b"))

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
