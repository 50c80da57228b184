package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

// IncrementRequest is the body of POST /rows/:id/increment.
type IncrementRequest struct {
	Deltas map[string]decimal.Decimal `json:"deltas" binding:"required"`
}

// BatchItem is one entry of a BatchRequest. NaturalID is a pointer so that
// required rejects a missing id but accepts 0.
type BatchItem struct {
	NaturalID *int64                     `json:"natural_id" binding:"required"`
	Deltas    map[string]decimal.Decimal `json:"deltas"`
}

// BatchRequest is the body of POST /rows/batch.
type BatchRequest struct {
	Updates        []BatchItem `json:"updates" binding:"required,min=1,dive"`
	ForceImmediate bool        `json:"force_immediate"`
}

// BatchResponse reports how many updates reached the source table.
type BatchResponse struct {
	Requested int                 `json:"requested"`
	Applied   int                 `json:"applied"`
	Warning   *apperrors.AppError `json:"warning,omitempty"`
}

// RowResponse wraps a written source row. Warning is set when the index
// could not be refreshed synchronously.
type RowResponse struct {
	Row     domain.SourceRow    `json:"row"`
	Warning *apperrors.AppError `json:"warning,omitempty"`
}

// IncrementRow handles POST /indexes/:index/rows/:id/increment.
func (s *Server) IncrementRow(c *gin.Context) {
	id, ok := naturalIDParam(c)
	if !ok {
		return
	}
	var req IncrementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	deltas, err := domain.ParseDeltas(req.Deltas)
	if err != nil {
		_ = c.Error(err)
		return
	}

	row, err := s.stats.IncrementCounters(c.Request.Context(), c.Param("index"), id, deltas)
	if stale, ok := staleWarning(err); ok {
		c.JSON(http.StatusAccepted, RowResponse{Row: row, Warning: stale})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, RowResponse{Row: row})
}

// ApplyBatch handles POST /indexes/:index/rows/batch.
func (s *Server) ApplyBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	updates := make([]domain.RowUpdate, 0, len(req.Updates))
	for i, item := range req.Updates {
		deltas, err := domain.ParseDeltas(item.Deltas)
		if errors.Is(err, domain.ErrEmptyDelta) {
			// Applied as a no-op and skipped by the service.
			deltas = domain.Deltas{}
		} else if err != nil {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeInvalidDelta, err.Error()).
				WithParams(map[string]interface{}{"item": i, "natural_id": *item.NaturalID}))
			return
		}
		updates = append(updates, domain.RowUpdate{NaturalID: *item.NaturalID, Deltas: deltas})
	}

	applied, err := s.stats.ApplyBatch(c.Request.Context(), c.Param("index"), updates, req.ForceImmediate)
	resp := BatchResponse{Requested: len(updates), Applied: applied}
	if stale, ok := staleWarning(err); ok {
		resp.Warning = stale
		c.JSON(http.StatusAccepted, resp)
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetRow handles GET /indexes/:index/rows/:id.
func (s *Server) GetRow(c *gin.Context) {
	id, ok := naturalIDParam(c)
	if !ok {
		return
	}
	row, err := s.query.Get(c.Request.Context(), c.Param("index"), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// ListRows handles GET /indexes/:index/rows?tier=&limit=.
func (s *Server) ListRows(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	var tier *domain.Tier
	if raw := c.Query("tier"); raw != "" {
		t, err := domain.ParseTier(raw)
		if err != nil {
			_ = c.Error(err)
			return
		}
		tier = &t
	}
	rows, err := s.query.List(c.Request.Context(), c.Param("index"), tier, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// TopByTier handles GET /indexes/:index/top?tier=high&limit=10.
func (s *Server) TopByTier(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	tier, err := domain.ParseTier(c.DefaultQuery("tier", string(domain.TierHigh)))
	if err != nil {
		_ = c.Error(err)
		return
	}
	rows, err := s.query.TopByTier(c.Request.Context(), c.Param("index"), tier, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// TopConverters handles GET /indexes/:index/top-converters?limit=10.
func (s *Server) TopConverters(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	rows, err := s.query.TopByConversion(c.Request.Context(), c.Param("index"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// Summary handles GET /indexes/:index/summary.
func (s *Server) Summary(c *gin.Context) {
	summary, err := s.query.SummaryByTier(c.Request.Context(), c.Param("index"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": summary})
}

func staleWarning(err error) (*apperrors.AppError, bool) {
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeIndexStale {
		return nil, false
	}
	return appErr, true
}
