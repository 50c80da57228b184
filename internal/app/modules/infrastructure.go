package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/infrastructure"
	"statsidx.io/statsidx/internal/pkg/worker"
	"statsidx.io/statsidx/internal/storage"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	Storage     *infrastructure.Storage
	Backend     storage.Backend
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	RiverClient *river.Client[pgx.Tx]
}

// NewInfrastructure opens storage and worker pools.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	st, err := infrastructure.OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		ReindexPoolSize: cfg.Worker.ReindexPoolSize,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return &Infrastructure{
		Config:  cfg,
		Storage: st,
		Backend: st.Backend,
		DB:      st.DB,
		Pools:   pools,
	}, nil
}

// RiverAvailable reports whether the storage driver provides a River queue.
func (i *Infrastructure) RiverAvailable() bool {
	return i != nil && i.DB != nil
}

// InitRiver initializes River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if !i.RiverAvailable() || i.Config == nil {
		return fmt.Errorf("river requires postgres storage")
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Storage != nil {
		i.Storage.Close()
	}
}
