package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/indexer"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// ChangelogDrainArgs triggers one scheduled runner tick over every index.
type ChangelogDrainArgs struct{}

// Kind returns the job kind identifier for changelog draining.
func (ChangelogDrainArgs) Kind() string { return "changelog_drain" }

// InsertOpts returns insert options for the drain job. A failed tick is not
// retried; its ids were requeued and the next period picks them up.
func (ChangelogDrainArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByQueue: true,
			ByArgs:  true,
		},
	}
}

// NewChangelogDrainPeriodicJob schedules a drain every interval.
func NewChangelogDrainPeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return ChangelogDrainArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

// ChangelogDrainWorker runs Runner.Tick.
type ChangelogDrainWorker struct {
	river.WorkerDefaults[ChangelogDrainArgs]
	runner *indexer.Runner
}

// NewChangelogDrainWorker creates a drain worker.
func NewChangelogDrainWorker(runner *indexer.Runner) *ChangelogDrainWorker {
	return &ChangelogDrainWorker{runner: runner}
}

// Work drains every eligible index once.
func (w *ChangelogDrainWorker) Work(ctx context.Context, _ *river.Job[ChangelogDrainArgs]) error {
	if w == nil || w.runner == nil {
		return fmt.Errorf("changelog drain worker is not initialized")
	}

	results, err := w.runner.Tick(ctx)
	reindexed := 0
	for _, r := range results {
		reindexed += r.Reindexed
	}
	if err != nil {
		logger.Warn("changelog drain finished with errors",
			zap.Int("indexes", len(results)),
			zap.Int("reindexed", reindexed),
			zap.Error(err),
		)
		return fmt.Errorf("changelog drain: %w", err)
	}
	logger.Debug("changelog drain completed",
		zap.Int("indexes", len(results)),
		zap.Int("reindexed", reindexed),
	)
	return nil
}

// Timeout bounds one tick.
func (w *ChangelogDrainWorker) Timeout(*river.Job[ChangelogDrainArgs]) time.Duration {
	return 10 * time.Minute
}
