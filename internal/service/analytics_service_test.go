package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsService_GetComputesAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	f.createQuote(t, kari.ID, 100000, domain.QuoteStatusWon, "2025-09-01")
	f.createQuote(t, kari.ID, 50000, domain.QuoteStatusLost, "2025-08-15")

	summary, err := f.analyticsService.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQuotes)
	assert.Equal(t, 1, summary.WonQuotes)
	assert.Equal(t, int64(100000), summary.TotalRevenue)
	assert.Equal(t, 50, summary.WinRate)
	assert.Equal(t, 1, summary.TotalCustomers)
	assert.Equal(t, fixedNow.UnixMilli(), summary.LastUpdated)

	cached, err := f.analytics.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalRevenue, cached.TotalRevenue)

	// a fresh cache is served as is
	f.createQuote(t, kari.ID, 1, domain.QuoteStatusWon, "2025-09-02")
	again, err := f.analyticsService.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TotalQuotes)

	// a stale one is rebuilt
	f.clock.Advance(2 * time.Hour)
	rebuilt, err := f.analyticsService.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 3, rebuilt.TotalQuotes)
	assert.Equal(t, 2.0, metricValue(t, f.registry, "proanbud_analytics_recomputes_total"))
}

func TestAnalyticsService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.analyticsService.Get(ctx, accountID)
	require.NoError(t, err)
	kari := f.createCustomer(t, "Kari")
	f.createQuote(t, kari.ID, 1000, domain.QuoteStatusPending, "2025-09-01")

	summary, err := f.analyticsService.Refresh(ctx, accountID)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQuotes)
	assert.Equal(t, 1, summary.TotalCustomers)
}

func TestAnalyticsService_RefreshIfStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	refreshed, err := f.analyticsService.RefreshIfStale(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, refreshed, "missing cache")

	refreshed, err = f.analyticsService.RefreshIfStale(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, refreshed, "fresh cache")

	f.clock.Advance(61 * time.Minute)
	refreshed, err = f.analyticsService.RefreshIfStale(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, refreshed, "stale cache")
}

func TestAnalyticsService_GetForPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	f.createQuote(t, kari.ID, 40000, domain.QuoteStatusWon, "2025-09-20")
	f.createQuote(t, kari.ID, 10000, domain.QuoteStatusPending, "2025-06-01")

	week, err := f.analyticsService.GetForPeriod(ctx, accountID, domain.TimePeriod7Days)
	require.NoError(t, err)
	assert.Len(t, week.DailySeries, 7)
	assert.Empty(t, week.MonthlySeries)
	assert.Equal(t, 1, week.TotalQuotes)
	assert.Equal(t, int64(40000), week.TotalRevenue)

	year, err := f.analyticsService.GetForPeriod(ctx, accountID, domain.TimePeriodYear)
	require.NoError(t, err)
	assert.Len(t, year.MonthlySeries, 12)
	assert.Equal(t, 2, year.TotalQuotes)

	_, err = f.analyticsService.GetForPeriod(ctx, accountID, "14dager")
	assert.True(t, errors.Is(err, service.ErrInvalidInput))
}

// updates collects live deliveries
type updates struct {
	mu    sync.Mutex
	items []*domain.Analytics
}

func (u *updates) add(a *domain.Analytics) {
	u.mu.Lock()
	u.items = append(u.items, a)
	u.mu.Unlock()
}

func (u *updates) last() (*domain.Analytics, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.items) == 0 {
		return nil, 0
	}
	return u.items[len(u.items)-1], len(u.items)
}

func TestAnalyticsService_SubscribeDeliversUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")

	var got updates
	unsubscribe, err := f.analyticsService.Subscribe(ctx, accountID, got.add)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		last, _ := got.last()
		return last != nil && last.TotalCustomers == 1 && last.TotalQuotes == 0
	}, 2*time.Second, 5*time.Millisecond)

	f.createQuote(t, kari.ID, 75000, domain.QuoteStatusWon, "2025-09-10")

	require.Eventually(t, func() bool {
		last, _ := got.last()
		return last != nil && last.TotalQuotes == 1 && last.TotalRevenue == 75000
	}, 2*time.Second, 5*time.Millisecond)

	last, _ := got.last()
	assert.NotZero(t, last.Version)
	cached, err := f.analytics.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), cached.TotalRevenue, "live results are persisted")
	assert.Equal(t, 1.0, metricValue(t, f.registry, "proanbud_analytics_live_subscriptions"))
}

func TestAnalyticsService_SubscribeVersionsIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")

	var got updates
	unsubscribe, err := f.analyticsService.Subscribe(ctx, accountID, got.add)
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		f.createQuote(t, kari.ID, 1000, domain.QuoteStatusPending, "2025-09-10")
	}

	require.Eventually(t, func() bool {
		last, _ := got.last()
		return last != nil && last.TotalQuotes == 5
	}, 2*time.Second, 5*time.Millisecond)

	got.mu.Lock()
	defer got.mu.Unlock()
	var previous uint64
	for _, item := range got.items {
		require.NotNil(t, item)
		assert.Greater(t, item.Version, previous)
		previous = item.Version
	}
}

func TestAnalyticsService_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")

	var got updates
	unsubscribe, err := f.analyticsService.Subscribe(ctx, accountID, got.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, n := got.last()
		return n > 0
	}, 2*time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	_, before := got.last()

	f.createQuote(t, kari.ID, 1000, domain.QuoteStatusWon, "2025-09-10")
	time.Sleep(50 * time.Millisecond)

	_, after := got.last()
	assert.Equal(t, before, after)
	assert.Equal(t, 0.0, metricValue(t, f.registry, "proanbud_analytics_live_subscriptions"))
}

func TestAnalyticsService_SubscribeRequiresStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.analyticsService.Subscribe(context.Background(), accountID, func(*domain.Analytics) {})

	assert.Equal(t, domain.CategoryConnectivity, service.Categorize(err))
}
