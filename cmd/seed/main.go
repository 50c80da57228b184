// Package main seeds every configured index with the sample products plus
// random rows, then builds each index.
//
// The row count comes from SEED_COUNT (default 100). Reruns overwrite the
// same natural ids.
//
// Import Path: statsidx.io/statsidx/cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/app"
	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/seed"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func seedCount() (int, error) {
	raw := os.Getenv("SEED_COUNT")
	if raw == "" {
		return seed.DefaultCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("SEED_COUNT must be a positive integer, got %q", raw)
	}
	return n, nil
}

func run(ctx context.Context) error {
	count, err := seedCount()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	logger.Info("Starting data seeding...", zap.Int("count", count))

	for _, idx := range application.Indexer.Engine.Indexes() {
		src := idx.Stores().Source
		if _, err := seed.InsertSamples(ctx, src); err != nil {
			return fmt.Errorf("seed %s: %w", idx.Name(), err)
		}
		if _, err := seed.Generate(ctx, src, seed.Options{Count: count}); err != nil {
			return fmt.Errorf("seed %s: %w", idx.Name(), err)
		}
		res, err := application.Admin.TriggerFullReindex(ctx, idx.Name(), false)
		if err != nil {
			return fmt.Errorf("build %s: %w", idx.Name(), err)
		}
		logger.Info("Index seeded",
			zap.String("index", idx.Name()),
			zap.Int("rows", res.Rows),
		)
	}

	logger.Info("Data seeding completed")
	return nil
}
