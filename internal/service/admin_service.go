package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
)

// FullReindexDispatcher runs a full reindex outside the caller's request.
type FullReindexDispatcher interface {
	// DispatchFullReindex enqueues a rebuild of index and returns a job reference.
	DispatchFullReindex(ctx context.Context, index string) (string, error)
}

// ReindexResult reports an administrative reindex.
type ReindexResult struct {
	Index string `json:"index" yaml:"index"`
	// Kind is "full" or "list".
	Kind      string `json:"kind" yaml:"kind"`
	Requested int    `json:"requested,omitempty" yaml:"requested,omitempty"`
	Rows      int    `json:"rows" yaml:"rows"`
	Queued    bool   `json:"queued" yaml:"queued"`
	JobID     string `json:"job_id,omitempty" yaml:"job_id,omitempty"`
}

// AdminService is the administrative control surface of the indexer.
type AdminService struct {
	engine     *indexer.Engine
	runner     *indexer.Runner
	dispatcher FullReindexDispatcher
}

// NewAdminService creates a new AdminService. dispatcher may be nil, in which
// case async full reindex requests run synchronously.
func NewAdminService(engine *indexer.Engine, runner *indexer.Runner, dispatcher FullReindexDispatcher) *AdminService {
	return &AdminService{engine: engine, runner: runner, dispatcher: dispatcher}
}

// Indexes lists the configured logical index names.
func (s *AdminService) Indexes() []string {
	all := s.engine.Indexes()
	names := make([]string, len(all))
	for i, idx := range all {
		names[i] = idx.Name()
	}
	return names
}

// SetMode parses and persists a new mode.
func (s *AdminService) SetMode(ctx context.Context, index, mode string) (domain.Mode, error) {
	m, err := domain.ParseMode(mode)
	if err != nil {
		return "", err
	}
	idx, err := s.engine.Index(index)
	if err != nil {
		return "", err
	}
	if err := idx.SetMode(ctx, m); err != nil {
		return "", err
	}
	return m, nil
}

// TriggerFullReindex rebuilds index, or enqueues the rebuild when async is
// set and a dispatcher is configured.
func (s *AdminService) TriggerFullReindex(ctx context.Context, index string, async bool) (ReindexResult, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return ReindexResult{}, err
	}
	res := ReindexResult{Index: index, Kind: "full"}

	if async && s.dispatcher != nil {
		jobID, err := s.dispatcher.DispatchFullReindex(ctx, index)
		if err != nil {
			return res, err
		}
		res.Queued, res.JobID = true, jobID
		logger.ForIndex(index).Info("Full reindex dispatched", zap.String("job_id", jobID))
		return res, nil
	}

	if idx.Busy() {
		return res, apperrors.ErrIndexBusyf(index)
	}
	n, err := idx.Action().ReindexFull(ctx)
	res.Rows = n
	if err != nil {
		return res, apperrors.Wrap(err, apperrors.ErrTransient, apperrors.CodeReindexFailed,
			"full reindex failed", http.StatusInternalServerError).WithParams(map[string]interface{}{"index": index})
	}
	return res, nil
}

// TriggerPartialReindex reindexes ids now when forceImmediate is set and
// otherwise routes them through the index's mode like a source change.
func (s *AdminService) TriggerPartialReindex(ctx context.Context, index string, ids []int64, forceImmediate bool) (ReindexResult, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return ReindexResult{}, err
	}
	res := ReindexResult{Index: index, Kind: "list", Requested: len(ids)}
	if len(ids) == 0 {
		return res, apperrors.BadRequest(apperrors.CodeValidationFailed, "at least one id is required")
	}

	if forceImmediate {
		n, err := idx.Action().ReindexList(ctx, ids)
		res.Rows = n
		return res, err
	}

	st, err := idx.State(ctx)
	if err != nil {
		return res, err
	}
	if err := idx.Processor().NotifyRowsChanged(ctx, ids, false); err != nil {
		return res, err
	}
	res.Queued = st.Mode == domain.ModeScheduled
	return res, nil
}

// ClearAll removes every source, index and changelog row of index.
func (s *AdminService) ClearAll(ctx context.Context, index string, confirmed bool) error {
	idx, err := s.engine.Index(index)
	if err != nil {
		return err
	}
	if !confirmed {
		return apperrors.ErrConfirmationRequiredf(index)
	}
	return idx.Action().Clear(ctx)
}

// Status reports counts, mode and health of index.
func (s *AdminService) Status(ctx context.Context, index string) (domain.IndexStatusReport, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return domain.IndexStatusReport{}, err
	}
	st, err := idx.State(ctx)
	if err != nil {
		return domain.IndexStatusReport{}, err
	}
	stores := idx.Stores()
	sourceCount, err := stores.Source.Count(ctx)
	if err != nil {
		return domain.IndexStatusReport{}, err
	}
	indexCount, err := stores.Index.Count(ctx)
	if err != nil {
		return domain.IndexStatusReport{}, err
	}
	pending, err := stores.Changelog.Pending(ctx)
	if err != nil {
		return domain.IndexStatusReport{}, err
	}

	report := domain.IndexStatusReport{
		Index:        index,
		Mode:         st.Mode,
		Status:       st.Status,
		Health:       domain.DeriveHealth(st, indexCount, pending),
		SourceCount:  sourceCount,
		IndexCount:   indexCount,
		PendingCount: pending,
		BuiltAt:      st.BuiltAt,
		LastDrainAt:  st.LastDrainAt,
	}
	if s.runner != nil {
		if last, ok := s.runner.LastRun(); ok {
			report.LastRunnerRun = &last
		}
	}
	return report, nil
}

// StatusAll reports every configured index.
func (s *AdminService) StatusAll(ctx context.Context) ([]domain.IndexStatusReport, error) {
	names := s.Indexes()
	out := make([]domain.IndexStatusReport, 0, len(names))
	for _, name := range names {
		r, err := s.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Drain drains the changelog of index once, regardless of its mode.
func (s *AdminService) Drain(ctx context.Context, index string) (indexer.DrainResult, error) {
	idx, err := s.engine.Index(index)
	if err != nil {
		return indexer.DrainResult{}, err
	}
	if s.runner == nil {
		return indexer.DrainResult{}, apperrors.Configuration(apperrors.CodeValidationFailed, "scheduled runner is not configured")
	}
	start := time.Now()
	res := s.runner.DrainIndex(ctx, idx)
	if res.Skipped {
		return res, apperrors.ErrIndexBusyf(index)
	}
	logger.ForIndex(index).Info("On-demand drain finished",
		zap.Int("reindexed", res.Reindexed),
		zap.Duration("duration", time.Since(start)),
	)
	return res, res.Err
}
