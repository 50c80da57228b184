package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"statsidx.io/statsidx/internal/api/handlers"
	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	"statsidx.io/statsidx/internal/jobs"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/service"
)

// IndexerModule owns the index registry, the scheduled runner and the
// counter/read services.
type IndexerModule struct {
	infra  *Infrastructure
	Engine *indexer.Engine
	Runner *indexer.Runner
	driver string

	stats *service.StatsService
	query *service.QueryService
}

// NewIndexerModule registers every configured index with a new engine.
func NewIndexerModule(ctx context.Context, infra *Infrastructure) (*IndexerModule, error) {
	cfg := infra.Config
	engine := indexer.NewEngine(infra.Backend.State(), indexer.Options{
		FullBatchSize:     cfg.Indexer.FullBatchSize,
		ImmediateFallback: cfg.Scheduler.ImmediateFallback,
	})

	for _, ic := range cfg.Indexes {
		set, err := infra.Backend.Open(ctx, ic.Tables())
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", ic.Name, err)
		}
		if _, err := engine.Register(ctx, indexer.Definition{
			Name:        ic.Name,
			Tables:      ic.Tables(),
			DefaultMode: domain.Mode(ic.Mode),
		}, set); err != nil {
			return nil, fmt.Errorf("register index %s: %w", ic.Name, err)
		}
	}

	runner := indexer.NewRunner(engine, indexer.RunnerConfig{
		DrainBatchSize:    cfg.Scheduler.DrainBatchSize,
		MaxBatchesPerTick: cfg.Scheduler.MaxBatchesPerTick,
		Parallelism:       cfg.Scheduler.Parallelism,
	})

	driver := cfg.Scheduler.EffectiveDriver(cfg.Storage.Driver)
	logger.Info("Indexer module ready",
		zap.Int("indexes", len(cfg.Indexes)),
		zap.String("scheduler", driver),
	)
	return &IndexerModule{
		infra:  infra,
		Engine: engine,
		Runner: runner,
		driver: driver,
		stats:  service.NewStatsService(engine),
		query:  service.NewQueryService(engine),
	}, nil
}

// Stats returns the counter write service.
func (m *IndexerModule) Stats() *service.StatsService { return m.stats }

// Query returns the index read service.
func (m *IndexerModule) Query() *service.QueryService { return m.query }

func (m *IndexerModule) Name() string { return "indexer" }

func (m *IndexerModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Stats = m.stats
	deps.Query = m.query
}

func (m *IndexerModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewFullReindexWorker(m.Engine))
	river.AddWorker(workers, jobs.NewChangelogDrainWorker(m.Runner))
}

// PeriodicJobs schedules the changelog drain when River drives the runner.
func (m *IndexerModule) PeriodicJobs() []*river.PeriodicJob {
	if m.driver != config.SchedulerRiver {
		return nil
	}
	return []*river.PeriodicJob{jobs.NewChangelogDrainPeriodicJob(m.infra.Config.Scheduler.Interval)}
}

// Start launches the in-process ticker when it drives the runner.
func (m *IndexerModule) Start(context.Context) error {
	if m.driver != config.SchedulerTicker {
		return nil
	}
	if err := jobs.StartTicker(m.infra.Pools, m.Runner, m.infra.Config.Scheduler.Interval); err != nil {
		return fmt.Errorf("start scheduled runner: %w", err)
	}
	logger.Info("Scheduled runner started", zap.Duration("interval", m.infra.Config.Scheduler.Interval))
	return nil
}

func (m *IndexerModule) Shutdown(context.Context) error { return nil }
