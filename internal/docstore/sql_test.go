package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/database"
	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/docstore/docstoretest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) docstore.Store {
	t.Helper()
	cfg := &config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "docs.db")}
	db, err := database.NewDatabase(cfg, config.StoreDriverSQLite, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	s, err := docstore.NewSQLStore(db, docstore.SQLOptions{}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestSQLStore_SQLite(t *testing.T) {
	docstoretest.Run(t, newSQLiteStore)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := &config.Config{
		Store:    config.StoreConfig{Driver: config.StoreDriverSQLite},
		Database: config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "open.db")},
	}

	store, sqlStore, err := docstore.Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, sqlStore)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := docstore.Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mongo"}}, zap.NewNop())
	require.Error(t, err)
}
