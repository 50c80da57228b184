package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsidx.io/statsidx/internal/api/middleware"
	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	"statsidx.io/statsidx/internal/pkg/logger"
	"statsidx.io/statsidx/internal/service"
	"statsidx.io/statsidx/internal/storage"
	"statsidx.io/statsidx/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

const testIndex = "product_stats"

type apiFixture struct {
	router *gin.Engine
	set    storage.Set
}

func newAPI(t *testing.T, mode domain.Mode) *apiFixture {
	t.Helper()
	backend, set := testutil.OpenSQLiteSet(t)
	engine := indexer.NewEngine(backend.State(), indexer.Options{
		ImmediateFallback: true,
		Clock:             func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	_, err := engine.Register(context.Background(), indexer.Definition{
		Name:        testIndex,
		Tables:      testutil.ProductTables,
		DefaultMode: mode,
	}, set)
	require.NoError(t, err)
	runner := indexer.NewRunner(engine, indexer.RunnerConfig{})

	srv := NewServer(ServerDeps{
		Stats:   service.NewStatsService(engine),
		Query:   service.NewQueryService(engine),
		Admin:   service.NewAdminService(engine, runner, nil),
		Storage: backend,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	srv.RegisterHealth(r)
	v1 := r.Group("/api/v1")
	srv.RegisterRows(v1)
	srv.RegisterAdmin(v1.Group("/admin"))
	return &apiFixture{router: r, set: set}
}

func (f *apiFixture) seed(t *testing.T, id, views, purchases int64, revenue string) {
	t.Helper()
	require.NoError(t, f.set.Source.Upsert(context.Background(), []domain.SourceRow{{
		NaturalID: id,
		Counters: domain.Counters{
			ViewCount:     views,
			PurchaseCount: purchases,
			Revenue:       decimal.RequireFromString(revenue),
		},
	}}))
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func (f *apiFixture) getRow(t *testing.T, id string) domain.IndexRow {
	t.Helper()
	w := f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/rows/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var row domain.IndexRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	return row
}

func TestHealth(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)

	w := f.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var h Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Checks["storage"])
}

func TestIncrementAndGet_Immediate(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 7, 1500, 300, "15000")

	w := f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	row := f.getRow(t, "7")
	assert.True(t, decimal.RequireFromString("20").Equal(row.ConversionRate))
	assert.Equal(t, domain.TierHigh, row.Tier)

	w = f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/7/increment",
		IncrementRequest{Deltas: map[string]decimal.Decimal{"view_count": decimal.NewFromInt(1)}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp RowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1501), resp.Row.Counters.ViewCount)
	assert.Nil(t, resp.Warning)

	row = f.getRow(t, "7")
	assert.Equal(t, int64(1501), row.Counters.ViewCount)
	assert.True(t, decimal.RequireFromString("19.99").Equal(row.ConversionRate), row.ConversionRate.String())
}

func TestRowErrors(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 1, 10, 0, "0")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"non numeric id", http.MethodGet, "/api/v1/indexes/product_stats/rows/abc", nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"row missing from index", http.MethodGet, "/api/v1/indexes/product_stats/rows/1", nil, http.StatusNotFound, "ROW_NOT_FOUND"},
		{"negative delta", http.MethodPost, "/api/v1/indexes/product_stats/rows/1/increment",
			map[string]any{"deltas": map[string]any{"view_count": -1}}, http.StatusBadRequest, "INVALID_DELTA"},
		{"unknown counter", http.MethodPost, "/api/v1/indexes/product_stats/rows/1/increment",
			map[string]any{"deltas": map[string]any{"likes": 1}}, http.StatusBadRequest, "INVALID_DELTA"},
		{"empty deltas", http.MethodPost, "/api/v1/indexes/product_stats/rows/1/increment",
			map[string]any{"deltas": map[string]any{"view_count": 0}}, http.StatusBadRequest, "INVALID_DELTA"},
		{"unknown source row", http.MethodPost, "/api/v1/indexes/product_stats/rows/99/increment",
			map[string]any{"deltas": map[string]any{"view_count": 1}}, http.StatusNotFound, "ROW_NOT_FOUND"},
		{"unknown index", http.MethodGet, "/api/v1/indexes/nope/summary", nil, http.StatusUnprocessableEntity, "INDEX_NOT_CONFIGURED"},
		{"bad tier", http.MethodGet, "/api/v1/indexes/product_stats/top?tier=huge", nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad limit", http.MethodGet, "/api/v1/indexes/product_stats/top-converters?limit=-2", nil, http.StatusBadRequest, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestApplyBatch(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 1, 10, 0, "0")
	f.seed(t, 2, 20, 1, "5")

	w := f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/batch", map[string]any{
		"updates": []map[string]any{
			{"natural_id": 1, "deltas": map[string]any{"view_count": 5}},
			{"natural_id": 2, "deltas": map[string]any{"purchase_count": 1, "revenue": "7.5"}},
			{"natural_id": 3, "deltas": map[string]any{"view_count": 1}},
			{"natural_id": 1, "deltas": map[string]any{}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Requested)
	assert.Equal(t, 2, resp.Applied)

	assert.Equal(t, int64(15), f.getRow(t, "1").Counters.ViewCount)
	row2 := f.getRow(t, "2")
	assert.Equal(t, int64(2), row2.Counters.PurchaseCount)
	assert.True(t, decimal.RequireFromString("12.5").Equal(row2.Counters.Revenue))

	w = f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/batch", map[string]any{
		"updates": []map[string]any{{"natural_id": 1, "deltas": map[string]any{"view_count": -5}}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DELTA", errorCode(t, w))

	w = f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/batch", map[string]any{"updates": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyBatch_NaturalIDZero(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 0, 10, 0, "0")

	w := f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/batch", map[string]any{
		"updates": []map[string]any{{"natural_id": 0, "deltas": map[string]any{"view_count": 5}}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, int64(15), f.getRow(t, "0").Counters.ViewCount)

	w = f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/batch", map[string]any{
		"updates": []map[string]any{{"deltas": map[string]any{"view_count": 5}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "natural_id is still required")
}

func TestReadRoutes(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 1, 1500, 30, "300")
	f.seed(t, 2, 1200, 60, "600")
	f.seed(t, 3, 500, 5, "50")
	f.seed(t, 4, 50, 0, "0")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex", nil).Code)

	var top struct {
		Items []domain.IndexRow `json:"items"`
	}
	w := f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/top?tier=high", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top.Items, 2)
	assert.Equal(t, int64(1), top.Items[0].NaturalID)

	w = f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/top-converters?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top.Items, 2)
	assert.Equal(t, int64(2), top.Items[0].NaturalID)

	w = f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/rows?tier=low", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Len(t, top.Items, 1)
	assert.Equal(t, int64(4), top.Items[0].NaturalID)

	var summary struct {
		Items []domain.TierSummary `json:"items"`
	}
	w = f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.NotEmpty(t, summary.Items)
	assert.Equal(t, domain.TierHigh, summary.Items[0].Tier)
	assert.Equal(t, int64(2), summary.Items[0].Count)
}

func TestAdmin_ScheduledModeAndDrain(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 7, 1500, 300, "15000")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex", nil).Code)

	w := f.do(t, http.MethodPut, "/api/v1/admin/indexes/product_stats/mode", SetModeRequest{Mode: "hourly"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_MODE", errorCode(t, w))

	w = f.do(t, http.MethodPut, "/api/v1/admin/indexes/product_stats/mode", SetModeRequest{Mode: "scheduled"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/indexes/product_stats/rows/7/increment",
		map[string]any{"deltas": map[string]any{"view_count": 1}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1500), f.getRow(t, "7").Counters.ViewCount)

	w = f.do(t, http.MethodGet, "/api/v1/admin/indexes/product_stats/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report domain.IndexStatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, domain.ModeScheduled, report.Mode)
	assert.Equal(t, int64(1), report.PendingCount)
	assert.Equal(t, domain.HealthStale, report.Health)

	w = f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/drain", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var drained indexer.DrainResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &drained))
	assert.Equal(t, 1, drained.Reindexed)
	assert.Equal(t, int64(1501), f.getRow(t, "7").Counters.ViewCount)

	w = f.do(t, http.MethodGet, "/api/v1/admin/indexes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []domain.IndexStatusReport `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, domain.HealthUpToDate, list.Items[0].Health)
}

func TestAdmin_PartialReindex(t *testing.T) {
	f := newAPI(t, domain.ModeScheduled)
	f.seed(t, 1, 10, 1, "5")

	w := f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex", ReindexRequest{IDs: []int64{1}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp ReindexResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, "list", resp.Kind)

	w = f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex",
		ReindexRequest{IDs: []int64{1, 404}, ForceImmediate: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Queued)
	assert.Equal(t, int64(10), f.getRow(t, "1").Counters.ViewCount)
}

func TestAdmin_ClearData(t *testing.T) {
	f := newAPI(t, domain.ModeImmediate)
	f.seed(t, 1, 10, 1, "5")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/indexes/product_stats/reindex", nil).Code)

	w := f.do(t, http.MethodDelete, "/api/v1/admin/indexes/product_stats/data", nil)
	require.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", errorCode(t, w))

	w = f.do(t, http.MethodDelete, "/api/v1/admin/indexes/product_stats/data", ClearDataRequest{Confirm: "other"})
	require.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/admin/indexes/product_stats/data", ClearDataRequest{Confirm: testIndex})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	n, err := f.set.Source.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	w = f.do(t, http.MethodGet, "/api/v1/indexes/product_stats/rows/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
