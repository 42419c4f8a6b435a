package docstore

import (
	"context"
	"fmt"

	"github.com/proanbud/proanbud-api/internal/config"
	"github.com/proanbud/proanbud-api/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open creates the backend selected by cfg.Store.Driver. The caller closes the
// returned store. The SQL handle is returned too when the driver is SQL based, so
// health checks can report pool statistics; it is nil otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, *SQLStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory document store; data is lost on restart")
		return NewMemoryStore(logger), nil, nil

	case config.StoreDriverRedis:
		s, err := NewRedisStore(ctx, RedisOptions{
			URL:          cfg.Redis.URL,
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeoutDuration(),
			ReadTimeout:  cfg.Redis.ReadTimeoutDuration(),
			WriteTimeout: cfg.Redis.WriteTimeoutDuration(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return s, nil, nil

	case config.StoreDriverFirestore:
		s, err := NewFirestoreStore(ctx, FirestoreOptions{
			ProjectID:       cfg.Firestore.ProjectID,
			DatabaseID:      cfg.Firestore.DatabaseID,
			CredentialsFile: cfg.Firestore.CredentialsFile,
			CredentialsJSON: cfg.Firestore.CredentialsJSON,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open firestore store: %w", err)
		}
		return s, nil, nil

	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		db, err := database.NewDatabase(&cfg.Database, cfg.Store.Driver, logger)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		// sqlite databases are local files created on demand; postgres schemas are
		// managed with cmd/migrate
		if cfg.Store.Driver == config.StoreDriverSQLite {
			if err := database.Migrate(db); err != nil {
				_ = closeDB()
				return nil, nil, err
			}
		}
		opts := SQLOptions{Channel: cfg.Database.NotifyChannel}
		if cfg.Store.Driver == config.StoreDriverPostgres && cfg.Database.Listen {
			opts.ListenDSN = cfg.Database.ConnectionString()
		}
		s, err := NewSQLStore(db, opts, logger)
		if err != nil {
			_ = closeDB()
			return nil, nil, fmt.Errorf("failed to open sql store: %w", err)
		}
		s.closeDB = closeDB
		return s, s, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// DB exposes the gorm handle for health checks
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}
