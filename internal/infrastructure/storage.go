package infrastructure

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/storage"
	"statsidx.io/statsidx/internal/storage/postgres"
	"statsidx.io/statsidx/internal/storage/sqlite"
)

// Storage is the opened storage backend. DB is nil unless the driver is postgres.
type Storage struct {
	Backend storage.Backend
	DB      *DatabaseClients
}

// OpenStorage opens the backend selected by storage.driver and migrates its
// shared tables.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	switch cfg.Storage.Driver {
	case storage.DriverSQLite:
		b, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return &Storage{Backend: b}, nil

	case storage.DriverPostgres:
		db, err := NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		b := postgres.New(db.Pool)
		if err := b.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Storage{Backend: b, DB: db}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}

// Close releases the backend and, on postgres, the shared pool.
func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.Backend != nil {
		s.Backend.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	logger.Debug("Storage closed", zap.Bool("postgres", s.DB != nil))
}
