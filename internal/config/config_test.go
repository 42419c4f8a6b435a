package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Proanbud API", cfg.App.Name)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "Europe/Oslo", cfg.Analytics.Timezone)
	assert.Equal(t, time.Hour, cfg.Analytics.StaleAfterDuration())
	assert.Equal(t, "0 */15 * * * *", cfg.Jobs.AnalyticsRefreshCron)
	assert.Equal(t, "0 30 3 * * *", cfg.Jobs.CounterReconcileCron)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.AnalyticsRefreshTimeoutDuration())
	assert.Contains(t, cfg.CORS.AllowedHeaders, "X-Account-ID")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_ADDRESS", "cache:6380")
	t.Setenv("FIREBASE_PROJECT_ID", "proanbud-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6380", cfg.Redis.Address)
	assert.Equal(t, "proanbud-test", cfg.Firebase.ProjectID)
	assert.Equal(t, "proanbud-test", cfg.Firestore.ProjectID)
	assert.Equal(t, "https://securetoken.google.com/proanbud-test", cfg.Firebase.Issuer())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:     StoreConfig{Driver: StoreDriverMemory},
			Analytics: AnalyticsConfig{Timezone: "UTC", StaleAfter: 60},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "memory ok", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Store.Driver = StoreDriverRedis }, wantErr: true},
		{name: "redis with url", mutate: func(c *Config) {
			c.Store.Driver = StoreDriverRedis
			c.Redis.URL = "redis://localhost:6379/0"
		}},
		{name: "firestore without project", mutate: func(c *Config) { c.Store.Driver = StoreDriverFirestore }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Analytics.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "zero stale after", mutate: func(c *Config) { c.Analytics.StaleAfter = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type mapSource map[string]string

func (m mapSource) GetSecretOrEnv(_ context.Context, secretName, _ string) (string, error) {
	v, ok := m[secretName]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "localhost", User: "default"}}
	source := mapSource{
		"POSTGRES-MAIN-HOST":    "db.internal",
		"REDIS-PASSWORD":        "redis-pass",
		"firestore-credentials": `{"type":"service_account"}`,
		"admin-api-key":         "key-123",
	}

	applySecrets(context.Background(), cfg, source, zap.NewNop())

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "default", cfg.Database.User, "missing secrets keep the configured value")
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
	assert.Equal(t, `{"type":"service_account"}`, cfg.Firestore.CredentialsJSON)
	assert.Equal(t, "key-123", cfg.ApiKey.Value)
}
