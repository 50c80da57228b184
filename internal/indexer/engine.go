// Package indexer keeps derived index tables consistent with their source tables.
//
// Each logical index is registered once with an Engine and owns:
//   - an Action implementing full, list and single-row reindexing
//   - a Processor routing change notifications by the persisted mode
//   - a per-index lock so that reindex runs never overlap
//
// A Runner drains changelogs of scheduled indexes periodically.
//
// Import Path: statsidx.io/statsidx/internal/indexer
package indexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/calc"
	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/storage"
)

// DefaultFullBatchSize is the source page size of a full rebuild.
const DefaultFullBatchSize = 1000

// Definition describes one logical index.
type Definition struct {
	Name        string
	Tables      storage.Tables
	DefaultMode domain.Mode
}

// Options configures an Engine.
type Options struct {
	// FullBatchSize is the source page size of ReindexFull.
	FullBatchSize int
	// ImmediateFallback appends to the changelog when a synchronous reindex fails.
	ImmediateFallback bool
	// Clock stamps indexed_at and built_at. Nil means time.Now.
	Clock calc.Clock
}

// Engine is the registry of logical indexes.
type Engine struct {
	state storage.StateStore
	opts  Options
	calc  *calc.Calculator

	mu      sync.RWMutex
	indexes map[string]*Index
	order   []string
}

// NewEngine creates an Engine persisting modes and status in state.
func NewEngine(state storage.StateStore, opts Options) *Engine {
	if opts.FullBatchSize <= 0 {
		opts.FullBatchSize = DefaultFullBatchSize
	}
	return &Engine{
		state:   state,
		opts:    opts,
		calc:    calc.New(opts.Clock),
		indexes: make(map[string]*Index),
	}
}

// Register adds a logical index and ensures its state record exists. A
// persisted working status left by a crashed rebuild is reset to invalid.
func (e *Engine) Register(ctx context.Context, def Definition, set storage.Set) (*Index, error) {
	if def.Name == "" {
		return nil, apperrors.Configuration(apperrors.CodeValidationFailed, "index name is required")
	}
	if def.DefaultMode == "" {
		def.DefaultMode = domain.ModeImmediate
	}
	if _, err := domain.ParseMode(string(def.DefaultMode)); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.indexes[def.Name]; exists {
		return nil, apperrors.Configuration(apperrors.CodeValidationFailed,
			fmt.Sprintf("index %q registered twice", def.Name))
	}

	st, err := e.state.Ensure(ctx, def.Name, def.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("ensure state of %s: %w", def.Name, err)
	}
	if st.Status == domain.StatusWorking {
		// A rebuild left working was interrupted before it could record a result.
		if err := e.state.SetStatus(ctx, def.Name, domain.StatusInvalid, nil); err != nil {
			return nil, fmt.Errorf("reset interrupted rebuild of %s: %w", def.Name, err)
		}
		logger.ForIndex(def.Name).Warn("Interrupted full reindex found; index marked invalid")
		st.Status = domain.StatusInvalid
	}

	idx := &Index{
		def:   def,
		set:   set,
		state: e.state,
		sem:   make(chan struct{}, 1),
		log:   logger.ForIndex(def.Name),
		calc:  e.calc,
	}
	idx.action = &Action{idx: idx, calc: e.calc, batchSize: e.opts.FullBatchSize}
	idx.processor = &Processor{idx: idx, action: idx.action, fallback: e.opts.ImmediateFallback}

	e.indexes[def.Name] = idx
	e.order = append(e.order, def.Name)

	idx.log.Info("Index registered",
		zap.String("mode", string(st.Mode)),
		zap.String("status", string(st.Status)),
		zap.String("source_table", def.Tables.Source),
		zap.String("index_table", def.Tables.Index),
	)
	return idx, nil
}

// Index returns a registered index or an INDEX_NOT_CONFIGURED error.
func (e *Engine) Index(name string) (*Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indexes[name]
	if !ok {
		return nil, apperrors.ErrIndexNotConfiguredf(name)
	}
	return idx, nil
}

// Indexes returns every registered index in registration order.
func (e *Engine) Indexes() []*Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Index, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.indexes[name])
	}
	return out
}

// State returns the state store shared by all indexes.
func (e *Engine) State() storage.StateStore { return e.state }

// Index is one registered logical index.
type Index struct {
	def       Definition
	set       storage.Set
	state     storage.StateStore
	sem       chan struct{}
	log       *zap.Logger
	calc      *calc.Calculator
	action    *Action
	processor *Processor
}

// Name returns the logical index name.
func (i *Index) Name() string { return i.def.Name }

// Tables returns the physical tables.
func (i *Index) Tables() storage.Tables { return i.def.Tables }

// Stores returns the source, index and changelog stores.
func (i *Index) Stores() storage.Set { return i.set }

// Action returns the reindex entry points.
func (i *Index) Action() *Action { return i.action }

// Processor returns the change notification router.
func (i *Index) Processor() *Processor { return i.processor }

// State reads the persisted control record.
func (i *Index) State(ctx context.Context) (domain.IndexState, error) {
	return i.state.Get(ctx, i.def.Name)
}

// SetMode persists a new freshness mode.
func (i *Index) SetMode(ctx context.Context, mode domain.Mode) error {
	if _, err := domain.ParseMode(string(mode)); err != nil {
		return err
	}
	if err := i.state.SetMode(ctx, i.def.Name, mode); err != nil {
		return err
	}
	i.log.Info("Index mode changed", zap.String("mode", string(mode)))
	return nil
}

// lock blocks until the index is free or ctx is done.
func (i *Index) lock(ctx context.Context) (func(), error) {
	select {
	case i.sem <- struct{}{}:
		return i.unlock, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryLock acquires the index only if it is free.
func (i *Index) tryLock() (func(), bool) {
	select {
	case i.sem <- struct{}{}:
		return i.unlock, true
	default:
		return nil, false
	}
}

func (i *Index) unlock() { <-i.sem }

// Busy reports whether a reindex currently holds the index.
func (i *Index) Busy() bool { return len(i.sem) > 0 }
