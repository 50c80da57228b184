package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"statsidx.io/statsidx/internal/storage"
	"statsidx.io/statsidx/internal/storage/sqlite"
)

// ProductTables are the table names tests use for the product stats index.
var ProductTables = storage.Tables{
	Source:    "product_stats_source",
	Index:     "product_stats_idx",
	Changelog: "product_stats_cl",
}

// OpenSQLite opens a SQLite backend on a fresh file under t.TempDir.
func OpenSQLite(t *testing.T) *sqlite.Backend {
	t.Helper()

	b, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open sqlite backend: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// OpenSQLiteSet opens a backend plus the stores of ProductTables.
func OpenSQLiteSet(t *testing.T) (*sqlite.Backend, storage.Set) {
	t.Helper()

	b := OpenSQLite(t)
	set, err := b.Open(context.Background(), ProductTables)
	if err != nil {
		t.Fatalf("open product tables: %v", err)
	}
	return b, set
}
