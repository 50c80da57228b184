package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/calc"
	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/storage"
)

// Action implements the three reindex granularities of one index.
// Every entry point is idempotent and holds the index lock while it runs.
type Action struct {
	idx       *Index
	calc      *calc.Calculator
	batchSize int
}

// ReindexFull truncates the index and rebuilds it from every source row.
//
// On failure the index is left truncated or partial and marked invalid; the
// caller must retry the whole rebuild. It returns the number of rows indexed.
func (a *Action) ReindexFull(ctx context.Context) (int, error) {
	unlock, err := a.idx.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	name := a.idx.Name()
	log := a.idx.log
	start := time.Now()
	log.Info("Full reindex started", zap.Int("batch_size", a.batchSize))

	if err := a.idx.state.SetStatus(ctx, name, domain.StatusWorking, nil); err != nil {
		return 0, fmt.Errorf("mark %s working: %w", name, err)
	}

	total, err := a.rebuild(ctx)
	reindexDuration.WithLabelValues(name, kindFull).Observe(time.Since(start).Seconds())
	reindexTotal.WithLabelValues(name, kindFull, result(err)).Inc()
	reindexRows.WithLabelValues(name, kindFull).Add(float64(total))

	if err != nil {
		// Record the failure even when ctx was cancelled mid-rebuild.
		if serr := a.idx.state.SetStatus(context.WithoutCancel(ctx), name, domain.StatusInvalid, nil); serr != nil {
			log.Error("Failed to mark index invalid", zap.Error(serr))
		}
		log.Error("Full reindex failed",
			zap.Int("rows_indexed", total),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return total, fmt.Errorf("full reindex of %s: %w", name, err)
	}

	builtAt := a.calc.Now()
	if err := a.idx.state.SetStatus(ctx, name, domain.StatusValid, &builtAt); err != nil {
		return total, fmt.Errorf("mark %s valid: %w", name, err)
	}
	log.Info("Full reindex completed",
		zap.Int("rows_indexed", total),
		zap.Duration("duration", time.Since(start)),
	)
	return total, nil
}

func (a *Action) rebuild(ctx context.Context) (int, error) {
	set := a.idx.set
	if err := set.Index.Truncate(ctx); err != nil {
		return 0, err
	}
	total := 0
	err := set.Source.ForEachBatch(ctx, a.batchSize, func(batch []domain.SourceRow) error {
		if err := set.Index.BulkInsert(ctx, a.calc.DeriveAll(batch)); err != nil {
			return err
		}
		total += len(batch)
		return nil
	})
	return total, err
}

// ReindexList re-derives the rows of ids and upserts each one.
//
// Empty input is a no-op. Ids missing from the source are skipped. It returns
// the number of rows upserted.
func (a *Action) ReindexList(ctx context.Context, ids []int64) (int, error) {
	ids = storage.UniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	unlock, err := a.idx.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return a.reindexList(ctx, ids)
}

// reindexList runs with the index lock held.
func (a *Action) reindexList(ctx context.Context, ids []int64) (int, error) {
	name := a.idx.Name()
	start := time.Now()

	n, err := a.upsertRows(ctx, ids)
	reindexDuration.WithLabelValues(name, kindList).Observe(time.Since(start).Seconds())
	reindexTotal.WithLabelValues(name, kindList, result(err)).Inc()
	reindexRows.WithLabelValues(name, kindList).Add(float64(n))

	if err != nil {
		a.idx.log.Warn("Partial reindex failed",
			zap.Int("requested", len(ids)),
			zap.Int("rows_indexed", n),
			zap.Error(err),
		)
		return n, fmt.Errorf("reindex %d rows of %s: %w", len(ids), name, err)
	}
	a.idx.log.Debug("Partial reindex completed",
		zap.Int("requested", len(ids)),
		zap.Int("rows_indexed", n),
		zap.Int("skipped_missing", len(ids)-n),
		zap.Duration("duration", time.Since(start)),
	)
	return n, nil
}

func (a *Action) upsertRows(ctx context.Context, ids []int64) (int, error) {
	set := a.idx.set
	rows, err := set.Source.GetMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, src := range rows {
		if err := set.Index.Upsert(ctx, a.calc.Derive(src)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ReindexRow is ReindexList for a single id.
func (a *Action) ReindexRow(ctx context.Context, id int64) error {
	_, err := a.ReindexList(ctx, []int64{id})
	return err
}

// Clear truncates source, index and changelog and marks the index invalid.
// It waits for any running reindex to finish first.
func (a *Action) Clear(ctx context.Context) error {
	unlock, err := a.idx.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	name := a.idx.Name()
	set := a.idx.set
	if err := set.Changelog.Truncate(ctx); err != nil {
		return fmt.Errorf("clear changelog of %s: %w", name, err)
	}
	if err := set.Index.Truncate(ctx); err != nil {
		return fmt.Errorf("clear index of %s: %w", name, err)
	}
	if err := set.Source.Truncate(ctx); err != nil {
		return fmt.Errorf("clear source of %s: %w", name, err)
	}
	if err := a.idx.state.SetStatus(ctx, name, domain.StatusInvalid, nil); err != nil {
		return fmt.Errorf("mark %s invalid: %w", name, err)
	}
	a.idx.log.Warn("Index data cleared")
	return nil
}
