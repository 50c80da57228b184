// Package storagetest is a conformance suite run against every storage backend.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Factory opens a fresh, empty backend and the stores of one logical index.
type Factory func(t *testing.T) (storage.Backend, storage.Set)

// Run executes the suite.
func Run(t *testing.T, open Factory) {
	t.Run("SourceUpsertAndGet", func(t *testing.T) { testSourceUpsertAndGet(t, open) })
	t.Run("SourceIncrement", func(t *testing.T) { testSourceIncrement(t, open) })
	t.Run("SourceGetManySkipsMissing", func(t *testing.T) { testSourceGetMany(t, open) })
	t.Run("SourceForEachBatch", func(t *testing.T) { testSourceForEachBatch(t, open) })
	t.Run("IndexUpsertAndScan", func(t *testing.T) { testIndexUpsertAndScan(t, open) })
	t.Run("IndexSummaryByTier", func(t *testing.T) { testIndexSummary(t, open) })
	t.Run("ChangelogCoalesces", func(t *testing.T) { testChangelogCoalesces(t, open) })
	t.Run("ChangelogConcurrentDrain", func(t *testing.T) { testChangelogConcurrentDrain(t, open) })
	t.Run("State", func(t *testing.T) { testState(t, open) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func source(id, views, purchases int64, revenue string) domain.SourceRow {
	return domain.SourceRow{
		NaturalID: id,
		Counters:  domain.Counters{ViewCount: views, PurchaseCount: purchases, Revenue: dec(revenue)},
	}
}

func testSourceUpsertAndGet(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	require.NoError(t, set.Source.Upsert(ctx, []domain.SourceRow{
		source(7, 1500, 300, "15000.00"),
		source(8, 10, 0, "0"),
	}))

	got, err := set.Source.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.NaturalID)
	assert.Equal(t, int64(1500), got.Counters.ViewCount)
	assert.True(t, dec("15000").Equal(got.Counters.Revenue))
	assert.NotZero(t, got.EntityID)

	// Upsert replaces counters and keeps the surrogate key.
	require.NoError(t, set.Source.Upsert(ctx, []domain.SourceRow{source(7, 1600, 301, "15050.5")}))
	again, err := set.Source.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, got.EntityID, again.EntityID)
	assert.Equal(t, int64(1600), again.Counters.ViewCount)
	assert.True(t, dec("15050.5").Equal(again.Counters.Revenue))

	_, err = set.Source.Get(ctx, 404)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	n, err := set.Source.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, set.Source.Truncate(ctx))
	n, err = set.Source.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testSourceIncrement(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	require.NoError(t, set.Source.Upsert(ctx, []domain.SourceRow{source(7, 10, 1, "9.99")}))

	got, err := set.Source.Increment(ctx, 7, domain.Deltas{ViewCount: 1, PurchaseCount: 1, Revenue: dec("10.0001")})
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Counters.ViewCount)
	assert.Equal(t, int64(2), got.Counters.PurchaseCount)
	assert.True(t, dec("19.9901").Equal(got.Counters.Revenue), "revenue = %s", got.Counters.Revenue)

	_, err = set.Source.Increment(ctx, 404, domain.Deltas{ViewCount: 1})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testSourceGetMany(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	require.NoError(t, set.Source.Upsert(ctx, []domain.SourceRow{
		source(1, 1, 0, "0"), source(2, 2, 0, "0"), source(3, 3, 0, "0"),
	}))

	rows, err := set.Source.GetMany(ctx, []int64{3, 1, 99, 1})
	require.NoError(t, err)
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.NaturalID)
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids)

	rows, err = set.Source.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testSourceForEachBatch(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	var rows []domain.SourceRow
	for i := int64(1); i <= 25; i++ {
		rows = append(rows, source(1000+i, i, 0, "0"))
	}
	require.NoError(t, set.Source.Upsert(ctx, rows))

	var (
		seen    []int64
		batches int
	)
	err := set.Source.ForEachBatch(ctx, 10, func(batch []domain.SourceRow) error {
		batches++
		for _, r := range batch {
			seen = append(seen, r.NaturalID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, batches)
	require.Len(t, seen, 25)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func indexRow(id, views, purchases int64, conv string, tier domain.Tier, at time.Time) domain.IndexRow {
	return domain.IndexRow{
		NaturalID:         id,
		Counters:          domain.Counters{ViewCount: views, PurchaseCount: purchases, Revenue: dec("100")},
		ConversionRate:    dec(conv),
		AverageOrderValue: dec("12.3457"),
		Tier:              tier,
		IndexedAt:         at,
	}
}

func testIndexUpsertAndScan(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, set.Index.BulkInsert(ctx, []domain.IndexRow{
		indexRow(1, 2000, 10, "0.50", domain.TierHigh, at),
		indexRow(2, 1500, 300, "20.00", domain.TierHigh, at),
		indexRow(3, 150, 0, "0", domain.TierMedium, at),
		indexRow(4, 50, 5, "10.00", domain.TierLow, at),
	}))

	got, err := set.Index.Get(ctx, 2)
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(got.ConversionRate))
	assert.True(t, dec("12.3457").Equal(got.AverageOrderValue))
	assert.Equal(t, domain.TierHigh, got.Tier)
	assert.True(t, at.Equal(got.IndexedAt))

	_, err = set.Index.Get(ctx, 404)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	high := domain.TierHigh
	byViews, err := set.Index.Scan(ctx, storage.ScanQuery{Tier: &high, OrderBy: storage.OrderByViewCount, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byViews, 2)
	assert.Equal(t, int64(1), byViews[0].NaturalID)

	converters, err := set.Index.Scan(ctx, storage.ScanQuery{MinPurchases: 1, OrderBy: storage.OrderByConversionRate, Limit: 2})
	require.NoError(t, err)
	require.Len(t, converters, 2)
	assert.Equal(t, int64(2), converters[0].NaturalID)
	assert.Equal(t, int64(4), converters[1].NaturalID)

	// Upsert of an existing id replaces, of a new id inserts.
	require.NoError(t, set.Index.Upsert(ctx, indexRow(3, 151, 1, "0.66", domain.TierMedium, at)))
	require.NoError(t, set.Index.Upsert(ctx, indexRow(5, 1, 0, "0", domain.TierLow, at)))
	n, err := set.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	got, err = set.Index.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(151), got.Counters.ViewCount)

	all, err := set.Index.Scan(ctx, storage.ScanQuery{OrderBy: storage.OrderByNaturalID})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].NaturalID)

	require.NoError(t, set.Index.Truncate(ctx))
	n, err = set.Index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testIndexSummary(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)
	at := time.Now().UTC()

	require.NoError(t, set.Index.BulkInsert(ctx, []domain.IndexRow{
		indexRow(1, 2000, 10, "0.50", domain.TierHigh, at),
		indexRow(2, 1500, 300, "20.00", domain.TierHigh, at),
		indexRow(4, 50, 5, "10.00", domain.TierLow, at),
	}))

	summary, err := set.Index.SummaryByTier(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, domain.TierHigh, summary[0].Tier)
	assert.Equal(t, int64(2), summary[0].Count)
	assert.True(t, dec("10.25").Equal(summary[0].AvgConversion), "avg = %s", summary[0].AvgConversion)
	assert.True(t, dec("200").Equal(summary[0].TotalRevenue))

	assert.Equal(t, domain.TierLow, summary[1].Tier)
	assert.Equal(t, int64(1), summary[1].Count)
}

func testChangelogCoalesces(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	require.NoError(t, set.Changelog.Append(ctx, 7))
	require.NoError(t, set.Changelog.Append(ctx, 7, 8))
	require.NoError(t, set.Changelog.Append(ctx, 9, 7))

	pending, err := set.Changelog.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	first, err := set.Changelog.Drain(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(7), first[0].NaturalID)
	assert.Equal(t, int64(8), first[1].NaturalID)
	assert.Less(t, first[0].Version, first[1].Version)

	rest, err := set.Changelog.Drain(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(9), rest[0].NaturalID)

	empty, err := set.Changelog.Drain(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// A drained id can be pending again.
	require.NoError(t, set.Changelog.Append(ctx, 7))
	require.NoError(t, set.Changelog.Truncate(ctx))
	pending, err = set.Changelog.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func testChangelogConcurrentDrain(t *testing.T, open Factory) {
	ctx := context.Background()
	_, set := open(t)

	const total = 200
	ids := make([]int64, total)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	require.NoError(t, set.Changelog.Append(ctx, ids...))

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := set.Changelog.Drain(ctx, 7)
				if err != nil {
					t.Errorf("drain: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					claimed[e.NaturalID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, total)
	for id, n := range claimed {
		require.Equal(t, 1, n, "id %d claimed %d times", id, n)
	}
}

func testState(t *testing.T, open Factory) {
	ctx := context.Background()
	b, _ := open(t)
	st := b.State()

	_, err := st.Get(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	created, err := st.Ensure(ctx, "product_stats", domain.ModeImmediate)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeImmediate, created.Mode)
	assert.Equal(t, domain.StatusInvalid, created.Status)
	assert.Nil(t, created.BuiltAt)

	// Ensure never overwrites an existing record.
	require.NoError(t, st.SetMode(ctx, "product_stats", domain.ModeScheduled))
	again, err := st.Ensure(ctx, "product_stats", domain.ModeImmediate)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeScheduled, again.Mode)

	built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.SetStatus(ctx, "product_stats", domain.StatusValid, &built))
	require.NoError(t, st.SetStatus(ctx, "product_stats", domain.StatusInvalid, nil))
	require.NoError(t, st.TouchDrain(ctx, "product_stats", built.Add(time.Minute)))

	got, err := st.Get(ctx, "product_stats")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, got.Status)
	require.NotNil(t, got.BuiltAt)
	assert.True(t, built.Equal(*got.BuiltAt))
	require.NotNil(t, got.LastDrainAt)
	assert.True(t, built.Add(time.Minute).Equal(*got.LastDrainAt))

	require.ErrorIs(t, st.SetMode(ctx, "missing", domain.ModeImmediate), apperrors.ErrConfiguration)
}
