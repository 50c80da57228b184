// Package seed generates sample source rows for local runs and demos.
//
// Rows are written straight to the source table; callers decide whether to
// notify the index or run a full reindex afterwards.
//
// Import Path: statsidx.io/statsidx/internal/seed
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/storage"
)

const (
	// FirstGeneratedID is the natural id of the first generated row.
	FirstGeneratedID = 1001
	// BatchSize is the number of rows per source upsert.
	BatchSize = 100
	// DefaultCount is the row count used when none is given.
	DefaultCount = 100

	maxViews         = 2000
	maxConversionPct = 30
	minUnitPrice     = 10
	maxUnitPrice     = 500
)

// Options controls Generate.
type Options struct {
	Count int
	// Rand defaults to a randomly seeded source.
	Rand *rand.Rand
	// Progress is called after every batch with the rows written so far.
	Progress func(done, total int)
}

// Generate upserts Count random rows with natural ids starting at
// FirstGeneratedID and returns their ids. Purchases never exceed 30% of
// views and revenue is purchases times a unit price in [10, 500].
func Generate(ctx context.Context, src storage.SourceStore, opts Options) ([]int64, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ids := make([]int64, 0, opts.Count)
	batch := make([]domain.SourceRow, 0, BatchSize)
	for i := 0; i < opts.Count; i++ {
		row := randomRow(rng, int64(FirstGeneratedID+i))
		batch = append(batch, row)
		ids = append(ids, row.NaturalID)

		if len(batch) == BatchSize || i == opts.Count-1 {
			if err := src.Upsert(ctx, batch); err != nil {
				return ids[:len(ids)-len(batch)], fmt.Errorf("insert batch ending at %d: %w", row.NaturalID, err)
			}
			logger.Debug("Seed batch inserted", zap.Int("done", i+1), zap.Int("total", opts.Count))
			if opts.Progress != nil {
				opts.Progress(i+1, opts.Count)
			}
			batch = batch[:0]
		}
	}
	return ids, nil
}

func randomRow(rng *rand.Rand, id int64) domain.SourceRow {
	views := rng.Int64N(maxViews + 1)
	purchases := rng.Int64N(views*maxConversionPct/100 + 1)
	price := minUnitPrice + rng.Int64N(maxUnitPrice-minUnitPrice+1)
	return domain.SourceRow{
		NaturalID: id,
		Counters: domain.Counters{
			ViewCount:     views,
			PurchaseCount: purchases,
			Revenue:       decimal.NewFromInt(purchases * price),
		},
	}
}

// Samples returns the three fixed demo products, one per popularity tier.
func Samples() []domain.SourceRow {
	return []domain.SourceRow{
		{NaturalID: 1, Counters: domain.Counters{ViewCount: 1500, PurchaseCount: 300, Revenue: decimal.NewFromInt(15000)}},
		{NaturalID: 2, Counters: domain.Counters{ViewCount: 500, PurchaseCount: 50, Revenue: decimal.NewFromInt(2500)}},
		{NaturalID: 3, Counters: domain.Counters{ViewCount: 50, PurchaseCount: 5, Revenue: decimal.NewFromInt(250)}},
	}
}

// InsertSamples upserts Samples and returns their ids.
func InsertSamples(ctx context.Context, src storage.SourceStore) ([]int64, error) {
	rows := Samples()
	if err := src.Upsert(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert samples: %w", err)
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.NaturalID
	}
	return ids, nil
}
