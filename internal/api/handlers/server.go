// Package handlers implements the HTTP surface of the stats indexer.
//
// Handlers never write error bodies themselves: they attach the error with
// c.Error and middleware.ErrorHandler renders it.
//
// Import Path: statsidx.io/statsidx/internal/api/handlers
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"statsidx.io/statsidx/internal/governance/audit"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/service"
)

// Pinger reports storage reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the services behind every route.
type Server struct {
	stats   *service.StatsService
	query   *service.QueryService
	admin   *service.AdminService
	storage Pinger
	audit   *audit.Logger
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Stats   *service.StatsService
	Query   *service.QueryService
	Admin   *service.AdminService
	Storage Pinger
	// Audit records admin actions; nil logs through the global logger.
	Audit *audit.Logger
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		stats:   deps.Stats,
		query:   deps.Query,
		admin:   deps.Admin,
		storage: deps.Storage,
		audit:   deps.Audit,
	}
}

// RegisterHealth mounts the liveness and readiness probes.
func (s *Server) RegisterHealth(r gin.IRoutes) {
	r.GET("/health/live", s.GetLiveness)
	r.GET("/health/ready", s.GetReadiness)
}

// RegisterRows mounts the counter and read routes under /indexes/:index.
func (s *Server) RegisterRows(g *gin.RouterGroup) {
	idx := g.Group("/indexes/:index")
	idx.POST("/rows/:id/increment", s.IncrementRow)
	idx.POST("/rows/batch", s.ApplyBatch)
	idx.GET("/rows/:id", s.GetRow)
	idx.GET("/rows", s.ListRows)
	idx.GET("/top", s.TopByTier)
	idx.GET("/top-converters", s.TopConverters)
	idx.GET("/summary", s.Summary)
}

// RegisterAdmin mounts the maintenance routes. Callers add auth middleware to g.
func (s *Server) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/indexes", s.ListIndexes)
	idx := g.Group("/indexes/:index")
	idx.GET("/status", s.GetIndexStatus)
	idx.PUT("/mode", s.SetMode)
	idx.POST("/reindex", s.Reindex)
	idx.POST("/drain", s.Drain)
	idx.DELETE("/data", s.ClearData)
}

func naturalIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "id must be an integer").
			WithParams(map[string]interface{}{"id": raw}))
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, name+" must be a non-negative integer").
			WithParams(map[string]interface{}{name: raw}))
		return 0, false
	}
	return n, true
}

func badBody(c *gin.Context, err error) {
	_ = c.Error(apperrors.Wrap(err, apperrors.ErrInvalidInput, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest))
}
