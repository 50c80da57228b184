package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/indexer"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/pkg/worker"
)

// RiverDispatcher enqueues full reindexes as River jobs.
type RiverDispatcher struct {
	client *river.Client[pgx.Tx]
	engine *indexer.Engine
}

// NewRiverDispatcher creates a dispatcher backed by client.
func NewRiverDispatcher(client *river.Client[pgx.Tx], engine *indexer.Engine) *RiverDispatcher {
	return &RiverDispatcher{client: client, engine: engine}
}

// DispatchFullReindex inserts a FullReindexArgs job. A duplicate of a job
// that is still pending returns the existing job id.
func (d *RiverDispatcher) DispatchFullReindex(ctx context.Context, index string) (string, error) {
	if _, err := d.engine.Index(index); err != nil {
		return "", err
	}
	res, err := d.client.Insert(ctx, FullReindexArgs{Index: index}, nil)
	if err != nil {
		return "", apperrors.Transient("enqueue full reindex", err)
	}
	if res.UniqueSkippedAsDuplicate {
		logger.Info("full reindex already queued",
			zap.String("index", index),
			zap.Int64("job_id", res.Job.ID),
		)
	}
	return strconv.FormatInt(res.Job.ID, 10), nil
}

// PoolDispatcher runs full reindexes on the reindex worker pool. It is used
// when River is unavailable (sqlite storage).
type PoolDispatcher struct {
	pools  *worker.Pools
	engine *indexer.Engine
}

// NewPoolDispatcher creates a dispatcher backed by the reindex pool.
func NewPoolDispatcher(pools *worker.Pools, engine *indexer.Engine) *PoolDispatcher {
	return &PoolDispatcher{pools: pools, engine: engine}
}

// DispatchFullReindex submits the rebuild as a detached task and returns a
// generated task id.
func (d *PoolDispatcher) DispatchFullReindex(_ context.Context, index string) (string, error) {
	if _, err := d.engine.Index(index); err != nil {
		return "", err
	}
	taskID := uuid.NewString()
	err := d.pools.SubmitDetached(worker.PoolReindex, func(ctx context.Context) {
		_ = runFullReindex(ctx, d.engine, index, 1)
	})
	if err != nil {
		return "", fmt.Errorf("submit full reindex of %s: %w", index, err)
	}
	logger.Info("full reindex submitted to worker pool",
		zap.String("index", index),
		zap.String("task_id", taskID),
	)
	return taskID, nil
}

// StartTicker runs the scheduled runner on the general pool until the pool
// shuts down. It replaces the periodic River job when River is unavailable.
func StartTicker(pools *worker.Pools, runner *indexer.Runner, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	return pools.SubmitDetached(worker.PoolGeneral, func(ctx context.Context) {
		if err := runner.Run(ctx, interval); err != nil {
			logger.Error("scheduled runner exited", zap.Error(err))
		}
	})
}
