package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// RunnerConfig tunes changelog draining.
type RunnerConfig struct {
	// DrainBatchSize is the maximum number of ids claimed per drain.
	DrainBatchSize int
	// MaxBatchesPerTick bounds the work one tick does per index.
	MaxBatchesPerTick int
	// Parallelism bounds how many indexes drain concurrently.
	Parallelism int
}

// DefaultRunnerConfig returns the defaults used when config leaves them unset.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DrainBatchSize:    500,
		MaxBatchesPerTick: 20,
		Parallelism:       4,
	}
}

// DrainResult reports one index's share of a tick.
type DrainResult struct {
	Index     string `json:"index" yaml:"index"`
	Batches   int    `json:"batches" yaml:"batches"`
	Claimed   int    `json:"claimed" yaml:"claimed"`
	Reindexed int    `json:"reindexed" yaml:"reindexed"`
	Requeued  int    `json:"requeued" yaml:"requeued"`
	// Skipped is set when the index was not eligible or was busy.
	Skipped bool   `json:"skipped" yaml:"skipped"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Err     error  `json:"-" yaml:"-"`
}

// Runner drains changelogs into partial reindexes.
//
// An index is drained when it is in scheduled mode or has a backlog (ids
// queued by the immediate-mode fallback or left over from a mode switch).
// A tick never waits for an index that another reindex holds; it skips it.
type Runner struct {
	engine *Engine
	cfg    RunnerConfig

	mu      sync.Mutex
	lastRun time.Time
}

// NewRunner creates a Runner over every index of engine.
func NewRunner(engine *Engine, cfg RunnerConfig) *Runner {
	def := DefaultRunnerConfig()
	if cfg.DrainBatchSize <= 0 {
		cfg.DrainBatchSize = def.DrainBatchSize
	}
	if cfg.MaxBatchesPerTick <= 0 {
		cfg.MaxBatchesPerTick = def.MaxBatchesPerTick
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	return &Runner{engine: engine, cfg: cfg}
}

// Tick drains every eligible index once. Indexes run in parallel; the
// returned error joins the per-index failures.
func (r *Runner) Tick(ctx context.Context) ([]DrainResult, error) {
	indexes := r.engine.Indexes()
	results := make([]DrainResult, len(indexes))

	p := pool.New().WithMaxGoroutines(r.cfg.Parallelism).WithContext(ctx)
	for i, idx := range indexes {
		p.Go(func(ctx context.Context) error {
			results[i] = r.tickIndex(ctx, idx)
			return results[i].Err
		})
	}
	err := p.Wait()

	r.mu.Lock()
	r.lastRun = r.engine.calc.Now()
	r.mu.Unlock()
	return results, err
}

func (r *Runner) tickIndex(ctx context.Context, idx *Index) DrainResult {
	res := DrainResult{Index: idx.Name()}

	st, err := idx.State(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	pending, err := idx.set.Changelog.Pending(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	changelogPending.WithLabelValues(idx.Name()).Set(float64(pending))

	if st.Mode != domain.ModeScheduled && pending == 0 {
		res.Skipped, res.Reason = true, "immediate mode, no backlog"
		return res
	}
	return r.drainLocked(ctx, idx)
}

// DrainIndex drains one index regardless of mode. It is the on-demand
// variant of a tick used by the admin surface.
func (r *Runner) DrainIndex(ctx context.Context, idx *Index) DrainResult {
	return r.drainLocked(ctx, idx)
}

func (r *Runner) drainLocked(ctx context.Context, idx *Index) DrainResult {
	res := DrainResult{Index: idx.Name()}
	unlock, ok := idx.tryLock()
	if !ok {
		runnerSkipped.WithLabelValues(idx.Name()).Inc()
		idx.log.Debug("Changelog drain skipped: index busy")
		res.Skipped, res.Reason = true, "index busy"
		return res
	}
	defer unlock()

	for res.Batches < r.cfg.MaxBatchesPerTick {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}
		entries, err := idx.set.Changelog.Drain(ctx, r.cfg.DrainBatchSize)
		if err != nil {
			res.Err = err
			break
		}
		if len(entries) == 0 {
			break
		}
		res.Batches++
		res.Claimed += len(entries)

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.NaturalID
		}
		n, err := idx.action.reindexList(ctx, ids)
		res.Reindexed += n
		if err != nil {
			res.Err = err
			r.requeue(ctx, idx, ids, &res)
			break
		}
		if len(entries) < r.cfg.DrainBatchSize {
			break
		}
	}

	if res.Batches > 0 {
		if err := idx.state.TouchDrain(context.WithoutCancel(ctx), idx.Name(), r.engine.calc.Now()); err != nil {
			idx.log.Warn("Failed to record drain time", zap.Error(err))
		}
		idx.log.Info("Changelog drained",
			zap.Int("batches", res.Batches),
			zap.Int("claimed", res.Claimed),
			zap.Int("reindexed", res.Reindexed),
			zap.Int("requeued", res.Requeued),
		)
	}
	return res
}

// requeue puts claimed ids back so a later tick retries them.
func (r *Runner) requeue(ctx context.Context, idx *Index, ids []int64, res *DrainResult) {
	if err := idx.set.Changelog.Append(context.WithoutCancel(ctx), ids...); err != nil {
		idx.log.Error("Failed to requeue drained ids",
			zap.Int64s("natural_ids", ids),
			zap.Error(err),
		)
		res.Err = errors.Join(res.Err, fmt.Errorf("requeue: %w", err))
		return
	}
	res.Requeued += len(ids)
	idx.log.Warn("Drained ids requeued after reindex failure",
		zap.Int("count", len(ids)),
		zap.Error(res.Err),
	)
}

// LastRun returns the time of the last completed tick.
func (r *Runner) LastRun() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, !r.lastRun.IsZero()
}

// Run ticks every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("runner interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Scheduled runner started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduled runner stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Scheduled runner tick finished with errors", zap.Error(err))
			}
		}
	}
}
