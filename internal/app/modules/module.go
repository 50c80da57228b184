// Package modules contains the dependency modules of the composition root.
//
// Import Path: statsidx.io/statsidx/internal/app/modules
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"statsidx.io/statsidx/internal/api/handlers"
)

// Module represents a dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// Starter is implemented by modules that run background work once the
// application starts.
type Starter interface {
	Start(context.Context) error
}

// PeriodicJobProvider is implemented by modules that schedule River periodic jobs.
type PeriodicJobProvider interface {
	PeriodicJobs() []*river.PeriodicJob
}
