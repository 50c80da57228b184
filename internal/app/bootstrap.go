// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"statsidx.io/statsidx/internal/api/handlers"
	"statsidx.io/statsidx/internal/app/modules"
	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/governance/audit"
	"statsidx.io/statsidx/internal/infrastructure"
	"statsidx.io/statsidx/internal/pkg/worker"
	"statsidx.io/statsidx/internal/service"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Storage *infrastructure.Storage
	Pools   *worker.Pools
	Modules []modules.Module

	Indexer *modules.IndexerModule
	Admin   *service.AdminService
	Audit   *audit.Logger
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	indexerModule, err := modules.NewIndexerModule(ctx, infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init indexer module: %w", err)
	}
	baseModules := []modules.Module{indexerModule}

	if infra.RiverAvailable() {
		workers := river.NewWorkers()
		var periodic []*river.PeriodicJob
		for _, mod := range baseModules {
			mod.RegisterWorkers(workers)
			if p, ok := mod.(modules.PeriodicJobProvider); ok {
				periodic = append(periodic, p.PeriodicJobs()...)
			}
		}
		if err := infra.InitRiver(workers, periodic); err != nil {
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}
	}

	adminModule := modules.NewAdminModule(infra, indexerModule)
	allModules := append(baseModules, adminModule)

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, modules.AdminJWTConfig(cfg.Security)),
		DB:      infra.DB,
		Storage: infra.Storage,
		Pools:   infra.Pools,
		Modules: allModules,
		Indexer: indexerModule,
		Admin:   adminModule.Service,
		Audit:   adminModule.Audit,
	}, nil
}
