package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"statsidx.io/statsidx/internal/api/middleware"
	"statsidx.io/statsidx/internal/governance/audit"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/service"
)

// SetModeRequest is the body of PUT /admin/indexes/:index/mode.
type SetModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// ReindexRequest is the body of POST /admin/indexes/:index/reindex.
// An empty IDs list requests a full rebuild.
type ReindexRequest struct {
	IDs            []int64 `json:"ids"`
	ForceImmediate bool    `json:"force_immediate"`
	Async          bool    `json:"async"`
}

// ReindexResponse wraps a reindex result with an optional stale warning.
type ReindexResponse struct {
	service.ReindexResult
	Warning *apperrors.AppError `json:"warning,omitempty"`
}

// ClearDataRequest confirms DELETE /admin/indexes/:index/data by repeating
// the index name.
type ClearDataRequest struct {
	Confirm string `json:"confirm"`
}

// ListIndexes handles GET /admin/indexes.
func (s *Server) ListIndexes(c *gin.Context) {
	reports, err := s.admin.StatusAll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reports})
}

// GetIndexStatus handles GET /admin/indexes/:index/status.
func (s *Server) GetIndexStatus(c *gin.Context) {
	report, err := s.admin.Status(c.Request.Context(), c.Param("index"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// SetMode handles PUT /admin/indexes/:index/mode.
func (s *Server) SetMode(c *gin.Context) {
	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	index := c.Param("index")
	mode, err := s.admin.SetMode(c.Request.Context(), index, req.Mode)
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.record(c, audit.ActionSetMode, index, map[string]interface{}{"mode": string(mode)})
	c.JSON(http.StatusOK, gin.H{"index": index, "mode": mode})
}

// Reindex handles POST /admin/indexes/:index/reindex.
func (s *Server) Reindex(c *gin.Context) {
	var req ReindexRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c, err)
			return
		}
	}
	ctx := c.Request.Context()
	index := c.Param("index")

	var (
		res service.ReindexResult
		err error
	)
	if len(req.IDs) == 0 {
		res, err = s.admin.TriggerFullReindex(ctx, index, req.Async)
	} else {
		res, err = s.admin.TriggerPartialReindex(ctx, index, req.IDs, req.ForceImmediate)
	}
	if stale, ok := staleWarning(err); ok {
		c.JSON(http.StatusAccepted, ReindexResponse{ReindexResult: res, Warning: stale})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	action := audit.ActionFullReindex
	if res.Kind == "list" {
		action = audit.ActionPartialReindex
	}
	s.record(c, action, index, map[string]interface{}{
		"requested": res.Requested,
		"rows":      res.Rows,
		"queued":    res.Queued,
	})

	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	c.JSON(status, ReindexResponse{ReindexResult: res})
}

// Drain handles POST /admin/indexes/:index/drain.
func (s *Server) Drain(c *gin.Context) {
	index := c.Param("index")
	res, err := s.admin.Drain(c.Request.Context(), index)
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.record(c, audit.ActionDrain, index, map[string]interface{}{"reindexed": res.Reindexed})
	c.JSON(http.StatusOK, res)
}

// ClearData handles DELETE /admin/indexes/:index/data.
// Confirm with ?force=true or a body {"confirm": "<index>"}.
func (s *Server) ClearData(c *gin.Context) {
	index := c.Param("index")
	confirmed, _ := strconv.ParseBool(c.Query("force"))
	if !confirmed && c.Request.ContentLength != 0 {
		var req ClearDataRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badBody(c, err)
			return
		}
		confirmed = req.Confirm == index
	}

	if err := s.admin.ClearAll(c.Request.Context(), index, confirmed); err != nil {
		_ = c.Error(err)
		return
	}
	s.record(c, audit.ActionClear, index, nil)
	c.Status(http.StatusNoContent)
}

// record writes an audit entry for the authenticated caller.
func (s *Server) record(c *gin.Context, action, index string, details map[string]interface{}) {
	ctx := c.Request.Context()
	if rid := middleware.GetRequestID(ctx); rid != "" {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["request_id"] = rid
	}
	s.audit.LogAction(ctx, action, index, middleware.GetSubject(ctx), details)
}
