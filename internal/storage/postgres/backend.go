// Package postgres implements the storage contracts on PostgreSQL through pgx/v5.
//
// The pool is shared with River (see internal/infrastructure); this package
// never opens or closes connections itself.
//
// Import Path: statsidx.io/statsidx/internal/storage/postgres
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/storage"
)

//go:embed schema.sql
var stateSchemaSQL string

// Backend is a storage.Backend on a shared pgxpool.
type Backend struct {
	pool  *pgxpool.Pool
	state *StateStore
}

var _ storage.Backend = (*Backend)(nil)

// New creates a Backend. Call Migrate before use.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool, state: &StateStore{pool: pool}}
}

// Migrate creates the shared state table.
func (b *Backend) Migrate(ctx context.Context) error {
	if err := execStatements(ctx, b.pool, stateSchemaSQL); err != nil {
		return fmt.Errorf("migrate indexer_state: %w", err)
	}
	logger.Info("PostgreSQL indexer state table ready")
	return nil
}

// Driver implements storage.Backend.
func (b *Backend) Driver() string { return storage.DriverPostgres }

// Open implements storage.Backend.
func (b *Backend) Open(ctx context.Context, tables storage.Tables) (storage.Set, error) {
	if err := tables.Validate(); err != nil {
		return storage.Set{}, err
	}
	if err := execStatements(ctx, b.pool, indexTablesDDL(tables)); err != nil {
		return storage.Set{}, fmt.Errorf("create tables for %s: %w", tables.Index, err)
	}
	logger.Debug("PostgreSQL index tables ready",
		zap.String("source", tables.Source),
		zap.String("index", tables.Index),
		zap.String("changelog", tables.Changelog),
	)
	return storage.Set{
		Source:    &SourceStore{pool: b.pool, table: tables.Source},
		Index:     &IndexStore{pool: b.pool, table: tables.Index},
		Changelog: &Changelog{pool: b.pool, table: tables.Changelog},
	}, nil
}

// State implements storage.Backend.
func (b *Backend) State() storage.StateStore { return b.state }

// Ping implements storage.Backend.
func (b *Backend) Ping(ctx context.Context) error { return b.pool.Ping(ctx) }

// Close implements storage.Backend. The pool belongs to DatabaseClients.
func (b *Backend) Close() {}

func execStatements(ctx context.Context, pool *pgxpool.Pool, sqlText string) error {
	for _, stmt := range strings.Split(sqlText, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
