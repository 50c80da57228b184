package main

import (
	"context"
	"path/filepath"
	"testing"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/config"
)

func TestSeedCount(t *testing.T) {
	t.Setenv("SEED_COUNT", "")
	if n, err := seedCount(); err != nil || n != 100 {
		t.Fatalf("seedCount() = %d, %v; want 100, nil", n, err)
	}

	t.Setenv("SEED_COUNT", "25")
	if n, err := seedCount(); err != nil || n != 25 {
		t.Fatalf("seedCount() = %d, %v; want 25, nil", n, err)
	}

	for _, raw := range []string{"0", "-3", "many"} {
		t.Setenv("SEED_COUNT", raw)
		if _, err := seedCount(); err == nil {
			t.Fatalf("seedCount() with SEED_COUNT=%q: expected error", raw)
		}
	}
}

func TestRun_SeedsAndBuildsIndexes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "seed.db")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("SEED_COUNT", "40")
	t.Setenv("LOG_LEVEL", "error")

	ctx := context.Background()
	if err := run(ctx); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	// Rerun overwrites instead of duplicating.
	if err := run(ctx); err != nil {
		t.Fatalf("second run() error: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer application.Shutdown()

	status, err := application.Admin.Status(ctx, config.DefaultIndex.Name)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.SourceCount != 43 || status.IndexCount != 43 {
		t.Fatalf("counts = %d source / %d index, want 43 / 43", status.SourceCount, status.IndexCount)
	}
}
