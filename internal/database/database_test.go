package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDatabase_SQLiteMigrateAndHealth(t *testing.T) {
	cfg := &config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "test.db")}

	db, err := database.NewDatabase(cfg, config.StoreDriverSQLite, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, database.Migrate(db))
	// applying twice is a no-op
	require.NoError(t, database.Migrate(db))
	assert.True(t, db.Migrator().HasTable("documents"))

	stats, err := database.HealthCheckWithStats(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpen)
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := database.NewDatabase(&config.DatabaseConfig{}, "oracle", zap.NewNop())
	assert.Error(t, err)
}

func TestHealthCheck_ClosedDatabase(t *testing.T) {
	cfg := &config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "closed.db")}
	db, err := database.NewDatabase(cfg, config.StoreDriverSQLite, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.Error(t, database.HealthCheck(context.Background(), db))
}
