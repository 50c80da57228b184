package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// StatsService applies counter increments to the source table and notifies
// the index of every row it changed.
type StatsService struct {
	engine *indexer.Engine
}

// NewStatsService creates a new StatsService.
func NewStatsService(engine *indexer.Engine) *StatsService {
	return &StatsService{engine: engine}
}

// IncrementCounters adds deltas to one source row.
//
// The write is committed before the index is notified. An INDEX_STALE error
// therefore still comes with the updated row.
func (s *StatsService) IncrementCounters(ctx context.Context, index string, naturalID int64, deltas domain.Deltas) (domain.SourceRow, error) {
	if deltas.IsZero() {
		return domain.SourceRow{}, domain.ErrEmptyDelta
	}
	idx, err := s.engine.Index(index)
	if err != nil {
		return domain.SourceRow{}, err
	}

	row, err := idx.Stores().Source.Increment(ctx, naturalID, deltas)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domain.SourceRow{}, apperrors.ErrRowNotFoundf(index, naturalID)
		}
		return domain.SourceRow{}, err
	}
	return row, idx.Processor().NotifyRowChanged(ctx, naturalID)
}

// IncrementViews records n product views.
func (s *StatsService) IncrementViews(ctx context.Context, index string, naturalID, n int64) (domain.SourceRow, error) {
	return s.IncrementCounters(ctx, index, naturalID, domain.Deltas{ViewCount: n})
}

// RecordPurchase records one purchase worth amount.
func (s *StatsService) RecordPurchase(ctx context.Context, index string, naturalID int64, amount decimal.Decimal) (domain.SourceRow, error) {
	if amount.IsNegative() {
		return domain.SourceRow{}, apperrors.BadRequest(apperrors.CodeInvalidDelta, "purchase amount must not be negative")
	}
	return s.IncrementCounters(ctx, index, naturalID, domain.Deltas{PurchaseCount: 1, Revenue: amount})
}

// ApplyBatch applies every update and notifies the index once for all
// changed ids. Updates with empty deltas or unknown ids are skipped.
// It returns the number of updates applied.
func (s *StatsService) ApplyBatch(ctx context.Context, index string, updates []domain.RowUpdate, forceImmediate bool) (int, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return 0, err
	}
	log := logger.ForIndex(index)

	applied := 0
	changed := make([]int64, 0, len(updates))
	for _, u := range updates {
		if u.Deltas.IsZero() {
			continue
		}
		if _, err := idx.Stores().Source.Increment(ctx, u.NaturalID, u.Deltas); err != nil {
			if apperrors.IsNotFound(err) {
				log.Debug("Batch update skipped: unknown row", zap.Int64("natural_id", u.NaturalID))
				continue
			}
			// Rows written so far still get reindexed.
			if nerr := idx.Processor().NotifyRowsChanged(ctx, changed, forceImmediate); nerr != nil {
				log.Warn("Notify after partial batch failed", zap.Error(nerr))
			}
			return applied, err
		}
		applied++
		changed = append(changed, u.NaturalID)
	}

	if err := idx.Processor().NotifyRowsChanged(ctx, changed, forceImmediate); err != nil {
		return applied, err
	}
	log.Debug("Batch applied",
		zap.Int("requested", len(updates)),
		zap.Int("applied", applied),
		zap.Bool("force_immediate", forceImmediate),
	)
	return applied, nil
}
