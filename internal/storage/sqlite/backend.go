// Package sqlite implements the storage contracts on an embedded SQLite file
// through modernc.org/sqlite (pure Go, no cgo).
//
// Money and ratios are stored as scaled integers so values round-trip exactly:
// revenue and average order value in 1e-4 units, conversion rate in 1e-2 units.
// Timestamps are unix nanoseconds in UTC.
//
// Import Path: statsidx.io/statsidx/internal/storage/sqlite
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/storage"
)

//go:embed schema.sql
var stateSchemaSQL string

// Backend is a storage.Backend on one SQLite database file.
type Backend struct {
	db    *sql.DB
	state *StateStore
}

var _ storage.Backend = (*Backend)(nil)

// Open opens (creating if needed) the database at path and migrates the
// shared state table.
func Open(ctx context.Context, path string) (*Backend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer. Never query db while holding a tx.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := execStatements(ctx, db, stateSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state table: %w", err)
	}

	logger.Info("SQLite storage opened", zap.String("path", path))
	return &Backend{db: db, state: &StateStore{db: db}}, nil
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Driver implements storage.Backend.
func (b *Backend) Driver() string { return storage.DriverSQLite }

// Open implements storage.Backend.
func (b *Backend) Open(ctx context.Context, tables storage.Tables) (storage.Set, error) {
	if err := tables.Validate(); err != nil {
		return storage.Set{}, err
	}
	if err := execStatements(ctx, b.db, indexTablesDDL(tables)); err != nil {
		return storage.Set{}, fmt.Errorf("create tables for %s: %w", tables.Index, err)
	}
	return storage.Set{
		Source:    &SourceStore{db: b.db, table: tables.Source},
		Index:     &IndexStore{db: b.db, table: tables.Index},
		Changelog: &Changelog{db: b.db, table: tables.Changelog},
	}, nil
}

// State implements storage.Backend.
func (b *Backend) State() storage.StateStore { return b.state }

// Ping implements storage.Backend.
func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

// Close implements storage.Backend.
func (b *Backend) Close() {
	if b == nil || b.db == nil {
		return
	}
	if err := b.db.Close(); err != nil {
		logger.Warn("Close sqlite", zap.Error(err))
	}
}

// DB exposes the handle for tests and tooling.
func (b *Backend) DB() *sql.DB { return b.db }

func execStatements(ctx context.Context, db *sql.DB, sqlText string) error {
	for _, stmt := range strings.Split(sqlText, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
