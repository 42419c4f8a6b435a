package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"github.com/proanbud/proanbud-api/internal/repository"
	"github.com/proanbud/proanbud-api/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const accountID = "acc-1"

var fixedNow = time.Date(2025, time.September, 24, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *docstore.MemoryStore
	clock    *testClock
	registry *prometheus.Registry

	quotes       *repository.QuoteRepository
	customerRepo *repository.CustomerRepository
	analytics    *repository.AnalyticsRepository

	customerService  *service.CustomerService
	quoteService     *service.QuoteService
	analyticsService *service.AnalyticsService
	dashboardService *service.DashboardService
	businessService  *service.BusinessService
	settingsService  *service.SettingsService
	accountService   *service.AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	store := docstore.NewMemoryStore(log)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: fixedNow}
	engine := analytics.NewEngine(log, analytics.WithClock(clock.Now), analytics.WithLocation(time.UTC))
	registry := prometheus.NewRegistry()

	quoteRepo := repository.NewQuoteRepository(store, log)
	customerRepo := repository.NewCustomerRepository(store, log)
	analyticsRepo := repository.NewAnalyticsRepository(store, log)
	businessRepo := repository.NewBusinessSettingsRepository(store, log)
	userRepo := repository.NewUserSettingsRepository(store, log)
	accountRepo := repository.NewAccountRepository(store, log)

	customers := service.NewCustomerService(store, customerRepo, quoteRepo, log)
	analyticsService := service.NewAnalyticsService(store, engine, quoteRepo, customerRepo, analyticsRepo,
		metrics.NewAnalyticsMetrics(registry), time.Hour, log)
	business := service.NewBusinessService(store, businessRepo, engine, log)
	settings := service.NewSettingsService(store, userRepo, log)

	return &fixture{
		store:            store,
		clock:            clock,
		registry:         registry,
		quotes:           quoteRepo,
		customerRepo:     customerRepo,
		analytics:        analyticsRepo,
		customerService:  customers,
		quoteService:     service.NewQuoteService(store, quoteRepo, businessRepo, customers, log),
		analyticsService: analyticsService,
		dashboardService: service.NewDashboardService(store, engine, analyticsService, quoteRepo, customerRepo, 0, log),
		businessService:  business,
		settingsService:  settings,
		accountService:   service.NewAccountService(store, accountRepo, analyticsRepo, business, settings, engine, log),
	}
}

func (f *fixture) createCustomer(t *testing.T, name string) *domain.CustomerDTO {
	t.Helper()
	c, err := f.customerService.Create(context.Background(), accountID, &domain.CreateCustomerRequest{Name: name})
	require.NoError(t, err)
	return c
}

func (f *fixture) createQuote(t *testing.T, customerID string, amount int64, status domain.QuoteStatus, date string) *domain.QuoteDTO {
	t.Helper()
	q, err := f.quoteService.Create(context.Background(), accountID, &domain.CreateQuoteRequest{
		CustomerID: customerID,
		Project:    "Prosjekt",
		JobType:    "Bad",
		Amount:     amount,
		Status:     status,
		QuoteDate:  date,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) counters(t *testing.T, customerID string) (int, int) {
	t.Helper()
	c, err := f.customerRepo.GetByID(context.Background(), accountID, customerID)
	require.NoError(t, err)
	return c.QuoteCount, c.WonCount
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}
