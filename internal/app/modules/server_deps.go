package modules

import (
	"statsidx.io/statsidx/internal/api/handlers"
	"statsidx.io/statsidx/internal/api/middleware"
	"statsidx.io/statsidx/internal/config"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{Storage: infra.Backend}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// AdminJWTConfig derives the admin token settings from security config.
func AdminJWTConfig(cfg config.SecurityConfig) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey: []byte(cfg.AdminJWTKey),
		Issuer:     cfg.AdminIssuer,
		ExpiresIn:  cfg.AdminTokenTTL,
	}
}
