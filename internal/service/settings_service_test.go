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

func TestBusinessService_InitializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.businessService.Initialize(ctx, accountID, "Snekker AS", "Post@Snekker.no")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Snekker AS", first.CompanyName)
	assert.Equal(t, "post@snekker.no", first.Email)
	assert.Equal(t, 2025, first.FoundedYear)
	assert.Equal(t, domain.BusinessTypeAS, first.BusinessType)
	assert.Equal(t, "#1A4314", first.PrimaryColor)
	assert.Equal(t, 25.0, first.VATRate)
	assert.NotZero(t, first.CreatedAt)

	_, err = f.businessService.Update(ctx, accountID, map[string]any{"city": "Bergen"})
	require.NoError(t, err)

	second, created, err := f.businessService.Initialize(ctx, accountID, "Annet AS", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Snekker AS", second.CompanyName)
	assert.Equal(t, "Bergen", second.City)
}

func TestBusinessService_SaveKeepsCreatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	initial, _, err := f.businessService.Initialize(ctx, accountID, "Snekker AS", "")
	require.NoError(t, err)

	replacement := domain.DefaultBusinessSettings("Ny Snekker AS", "", fixedNow)
	saved, err := f.businessService.Save(ctx, accountID, &replacement)

	require.NoError(t, err)
	assert.Equal(t, "Ny Snekker AS", saved.CompanyName)
	assert.Equal(t, initial.CreatedAt, saved.CreatedAt)
	assert.NotNil(t, saved.ServiceAreas)
}

func TestBusinessService_UpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.businessService.Update(ctx, accountID, map[string]any{"city": "Bergen"})
	assert.True(t, errors.Is(err, service.ErrSettingsNotFound))
	assert.Equal(t, domain.CategoryNotFound, service.Categorize(err))

	_, _, err = f.businessService.Initialize(ctx, accountID, "Snekker AS", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "empty", fields: map[string]any{}},
		{name: "unknown field", fields: map[string]any{"ownerId": "x"}},
		{name: "wrong type", fields: map[string]any{"vatRate": "tjuefem"}},
		{name: "unknown pricing strategy", fields: map[string]any{"pricingStrategy": "free"}},
		{name: "unknown business type", fields: map[string]any{"businessType": "llc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.businessService.Update(ctx, accountID, tt.fields)
			assert.True(t, errors.Is(err, service.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestBusinessService_Context(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.businessService.Context(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, _, err = f.businessService.Initialize(ctx, accountID, "Snekker AS", "")
	require.NoError(t, err)
	_, err = f.businessService.Update(ctx, accountID, map[string]any{
		"industry":        "Bygg",
		"specializations": []string{"Bad", "Kjøkken"},
	})
	require.NoError(t, err)

	text, err := f.businessService.Context(ctx, accountID)
	require.NoError(t, err)
	assert.Contains(t, text, "Bedrift: Snekker AS")
	assert.Contains(t, text, "Bransje: Bygg")
	assert.Contains(t, text, "Spesialiseringer: Bad, Kjøkken")
	assert.Contains(t, text, "Prisstrategi: medium")
}

func TestSettingsService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.settingsService.Get(ctx, accountID)
	require.True(t, errors.Is(err, service.ErrSettingsNotFound))

	initial, created, err := f.settingsService.Initialize(ctx, accountID, "Kari", "KARI@example.no")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "kari@example.no", initial.Email)
	assert.Equal(t, "no", initial.Language)
	assert.True(t, initial.Notifications)

	updated, err := f.settingsService.Update(ctx, accountID, map[string]any{"notifications": false, "email": " Ny@Example.no"})
	require.NoError(t, err)
	assert.False(t, updated.Notifications)
	assert.Equal(t, "ny@example.no", updated.Email)
	assert.Equal(t, "Europe/Oslo", updated.Timezone)

	_, err = f.settingsService.Update(ctx, accountID, map[string]any{"notifications": "ja"})
	assert.True(t, errors.Is(err, service.ErrInvalidInput))

	saved, err := f.settingsService.Save(ctx, accountID, &domain.UserSettings{Name: " Kari ", Language: "en", Timezone: "UTC"})
	require.NoError(t, err)
	assert.Equal(t, "Kari", saved.Name)
	assert.Equal(t, "en", saved.Language)
	assert.NotZero(t, saved.LastUpdated)
}

func TestAccountService_Initialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &domain.InitAccountRequest{Name: "Kari", Email: "kari@example.no", CompanyName: "Snekker AS"}

	result, err := f.accountService.Initialize(ctx, accountID, req)
	require.NoError(t, err)
	assert.True(t, result.Created)

	summary, err := f.analytics.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalQuotes)
	assert.Len(t, summary.MonthlySeries, 6)

	business, err := f.businessService.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "Snekker AS", business.CompanyName)
	user, err := f.settingsService.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "Kari", user.Name)

	result, err = f.accountService.Initialize(ctx, accountID, req)
	require.NoError(t, err)
	assert.False(t, result.Created)
}

func TestDashboardService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kari := f.createCustomer(t, "Kari")
	f.createQuote(t, kari.ID, 150000, domain.QuoteStatusWon, "2025-09-02")
	f.createQuote(t, kari.ID, 100000, domain.QuoteStatusWon, "2025-08-05")

	kpis, err := f.dashboardService.KPIs(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, kpis.KPIs, 4)
	assert.Equal(t, "250\u00a0000 kr", kpis.KPIs[0].Value)
	assert.Equal(t, "+50.0%", kpis.KPIs[0].Change)

	chart, err := f.dashboardService.Chart(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, chart, 12)
	assert.Equal(t, int64(150000), chart[11].RevenueWon)

	feed, err := f.dashboardService.Activity(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, feed, 3)

	feed, err = f.dashboardService.Activity(ctx, accountID, 1)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}
