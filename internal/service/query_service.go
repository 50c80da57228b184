package service

import (
	"context"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Result limits.
const (
	DefaultTopLimit  = 10
	DefaultListLimit = 20
	MaxLimit         = 1000
)

// QueryService reads derived rows. It never touches the source table.
type QueryService struct {
	engine *indexer.Engine
}

// NewQueryService creates a new QueryService.
func NewQueryService(engine *indexer.Engine) *QueryService {
	return &QueryService{engine: engine}
}

// Get returns the index row of naturalID or ROW_NOT_FOUND.
func (s *QueryService) Get(ctx context.Context, index string, naturalID int64) (domain.IndexRow, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return domain.IndexRow{}, err
	}
	row, err := idx.Stores().Index.Get(ctx, naturalID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domain.IndexRow{}, apperrors.ErrRowNotFoundf(index, naturalID)
		}
		return domain.IndexRow{}, err
	}
	return row, nil
}

// TopByTier returns the most viewed rows of tier.
func (s *QueryService) TopByTier(ctx context.Context, index string, tier domain.Tier, limit int) ([]domain.IndexRow, error) {
	return s.scan(ctx, index, storage.ScanQuery{
		Tier:    &tier,
		OrderBy: storage.OrderByViewCount,
		Limit:   clampLimit(limit, DefaultTopLimit),
	})
}

// TopByConversion returns the rows with the highest conversion rate among
// those with at least one purchase.
func (s *QueryService) TopByConversion(ctx context.Context, index string, limit int) ([]domain.IndexRow, error) {
	return s.scan(ctx, index, storage.ScanQuery{
		MinPurchases: 1,
		OrderBy:      storage.OrderByConversionRate,
		Limit:        clampLimit(limit, DefaultTopLimit),
	})
}

// List returns rows by conversion rate, optionally restricted to one tier.
func (s *QueryService) List(ctx context.Context, index string, tier *domain.Tier, limit int) ([]domain.IndexRow, error) {
	return s.scan(ctx, index, storage.ScanQuery{
		Tier:    tier,
		OrderBy: storage.OrderByConversionRate,
		Limit:   clampLimit(limit, DefaultListLimit),
	})
}

// SummaryByTier aggregates the index per tier, high to low.
func (s *QueryService) SummaryByTier(ctx context.Context, index string) ([]domain.TierSummary, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return nil, err
	}
	return idx.Stores().Index.SummaryByTier(ctx)
}

func (s *QueryService) scan(ctx context.Context, index string, q storage.ScanQuery) ([]domain.IndexRow, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return nil, err
	}
	return idx.Stores().Index.Scan(ctx, q)
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
