package indexer

import (
	"context"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Processor routes row change notifications by the index's persisted mode.
// The mode is read on every call; only SetMode changes it.
type Processor struct {
	idx      *Index
	action   *Action
	fallback bool
}

// NotifyRowChanged reindexes id synchronously in immediate mode, or records
// it in the changelog in scheduled mode.
func (p *Processor) NotifyRowChanged(ctx context.Context, id int64) error {
	return p.NotifyRowsChanged(ctx, []int64{id}, false)
}

// NotifyRowsChanged is the batch variant. forceImmediate reindexes ids now
// regardless of mode.
//
// When a synchronous reindex fails, forced or not, the triggering write stays
// committed and an INDEX_STALE error is returned. With fallback enabled the
// ids are also appended to the changelog so the runner repairs them.
func (p *Processor) NotifyRowsChanged(ctx context.Context, ids []int64, forceImmediate bool) error {
	ids = storage.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	if forceImmediate {
		if _, err := p.action.ReindexList(ctx, ids); err != nil {
			return p.stale(ctx, ids, err)
		}
		return nil
	}

	st, err := p.idx.State(ctx)
	if err != nil {
		return err
	}

	switch st.Mode {
	case domain.ModeScheduled:
		return p.record(ctx, ids)
	case domain.ModeImmediate:
		if _, err := p.action.ReindexList(ctx, ids); err != nil {
			return p.stale(ctx, ids, err)
		}
		return nil
	default:
		return apperrors.ErrInvalidModef(string(st.Mode))
	}
}

func (p *Processor) record(ctx context.Context, ids []int64) error {
	if err := p.idx.set.Changelog.Append(ctx, ids...); err != nil {
		return err
	}
	changelogAppended.WithLabelValues(p.idx.Name()).Add(float64(len(ids)))
	return nil
}

func (p *Processor) stale(ctx context.Context, ids []int64, cause error) error {
	queued := false
	if p.fallback {
		if err := p.record(context.WithoutCancel(ctx), ids); err != nil {
			p.idx.log.Error("Changelog fallback failed; index stale until next full reindex",
				zap.Int64s("natural_ids", ids),
				zap.Error(err),
			)
		} else {
			queued = true
		}
	}
	p.idx.log.Warn("Immediate reindex failed",
		zap.Int64s("natural_ids", ids),
		zap.Bool("queued", queued),
		zap.Error(cause),
	)
	return apperrors.ErrIndexStalef(p.idx.Name(), ids, queued, cause)
}
