package modules

import (
	"context"

	"github.com/riverqueue/river"

	"statsidx.io/statsidx/internal/api/handlers"
	"statsidx.io/statsidx/internal/governance/audit"
	"statsidx.io/statsidx/internal/jobs"
	"statsidx.io/statsidx/internal/service"
)

// AdminModule wires the maintenance surface. Async full reindexes go through
// River when it is running and through the reindex worker pool otherwise.
type AdminModule struct {
	Service *service.AdminService
	Audit   *audit.Logger
}

// NewAdminModule must be called after River is initialized.
func NewAdminModule(infra *Infrastructure, idx *IndexerModule) *AdminModule {
	var dispatcher service.FullReindexDispatcher
	if infra.RiverClient != nil {
		dispatcher = jobs.NewRiverDispatcher(infra.RiverClient, idx.Engine)
	} else {
		dispatcher = jobs.NewPoolDispatcher(infra.Pools, idx.Engine)
	}
	return &AdminModule{
		Service: service.NewAdminService(idx.Engine, idx.Runner, dispatcher),
		Audit:   audit.NewLogger(nil),
	}
}

func (m *AdminModule) Name() string { return "admin" }

func (m *AdminModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Admin = m.Service
	deps.Audit = m.Audit
}

func (m *AdminModule) RegisterWorkers(_ *river.Workers) {}

func (m *AdminModule) Shutdown(context.Context) error { return nil }
