package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statsidx.io/statsidx/internal/api/handlers"
	"statsidx.io/statsidx/internal/api/middleware"
	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/pkg/logger"
)

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.CORS(cfg.Server.AllowedOrigins, cfg.Server.AllowCredentials),
		middleware.ErrorHandler(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	server.RegisterHealth(v1)
	server.RegisterRows(v1)

	admin := v1.Group("/admin")
	if jwtCfg.Enabled() {
		admin.Use(middleware.JWTAuth(jwtCfg), middleware.RequireRole(middleware.RoleAdmin))
	}
	server.RegisterAdmin(admin)

	level := gin.WrapH(logger.HTTPHandler())
	admin.GET("/log-level", level)
	admin.PUT("/log-level", level)
	return router
}
