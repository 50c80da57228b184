// Package jobs defines River Queue job types for index maintenance.
//
// Two jobs exist: the periodic changelog drain that drives the scheduled
// runner, and the administrative full reindex. Both carry only an index name.
//
// Import Path: statsidx.io/statsidx/internal/jobs
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/indexer"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// QueueReindex isolates long full rebuilds from the drain queue.
const QueueReindex = "reindex"

// FullReindexArgs carries the logical index to rebuild.
type FullReindexArgs struct {
	Index string `json:"index"`
}

// Kind returns the job kind identifier for full reindexing.
func (FullReindexArgs) Kind() string { return "full_reindex" }

// InsertOpts returns default insert options for full reindex jobs.
func (FullReindexArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueReindex,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// FullReindexWorker rebuilds one index from its source table.
type FullReindexWorker struct {
	river.WorkerDefaults[FullReindexArgs]
	engine *indexer.Engine
}

// NewFullReindexWorker creates a full reindex worker.
func NewFullReindexWorker(engine *indexer.Engine) *FullReindexWorker {
	return &FullReindexWorker{engine: engine}
}

// Work runs the rebuild. Configuration errors cancel the job instead of retrying.
func (w *FullReindexWorker) Work(ctx context.Context, job *river.Job[FullReindexArgs]) error {
	if w == nil || w.engine == nil {
		return fmt.Errorf("full reindex worker is not initialized")
	}
	return runFullReindex(ctx, w.engine, job.Args.Index, job.Attempt)
}

// Timeout allows long rebuilds.
func (w *FullReindexWorker) Timeout(*river.Job[FullReindexArgs]) time.Duration {
	return time.Hour
}

func runFullReindex(ctx context.Context, engine *indexer.Engine, name string, attempt int) error {
	idx, err := engine.Index(name)
	if err != nil {
		logger.Error("full reindex job references unknown index",
			zap.String("index", name),
			zap.Error(err),
		)
		return river.JobCancel(err)
	}

	rows, err := idx.Action().ReindexFull(ctx)
	if err != nil {
		if apperrors.IsConfiguration(err) {
			return river.JobCancel(err)
		}
		logger.Warn("full reindex job failed",
			zap.String("index", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}
	logger.Info("full reindex job completed",
		zap.String("index", name),
		zap.Int("rows_indexed", rows),
	)
	return nil
}
