package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

var testJWT = JWTConfig{
	SigningKey: []byte("test-signing-key-1234567890123456"),
	Issuer:     "statsidx",
	ExpiresIn:  time.Hour,
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), ErrorHandler())
	router.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(apperrors.ErrRowNotFoundf("product_stats", 7))
	})
	router.GET("/err", func(c *gin.Context) { _ = c.Error(fmt.Errorf("something unexpected")) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	w = serve(router, req)
	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeRowNotFound, body["code"])
	assert.Equal(t, "rid-1", body["request_id"])
	assert.Equal(t, "rid-1", w.Header().Get(RequestIDHeader))
	params, ok := body["params"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, params["natural_id"])

	w = serve(router, httptest.NewRequest(http.MethodGet, "/err", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func adminRouter() *gin.Engine {
	router := gin.New()
	router.Use(JWTAuth(testJWT), RequireRole(RoleAdmin))
	router.GET("/admin", func(c *gin.Context) {
		c.String(http.StatusOK, GetSubject(c.Request.Context()))
	})
	return router
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestJWTAuth(t *testing.T) {
	router := adminRouter()

	w := serve(router, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, serve(router, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(router, bearer("not-a-token")).Code)

	token, _, err := GenerateToken(testJWT, "ops", []string{RoleAdmin})
	require.NoError(t, err)
	w = serve(router, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestJWTAuth_RejectsWrongIssuerAndExpired(t *testing.T) {
	router := adminRouter()

	other := testJWT
	other.Issuer = "someone-else"
	token, _, err := GenerateToken(other, "ops", []string{RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(router, bearer(token)).Code)

	expired := testJWT
	expired.ExpiresIn = -time.Minute
	token, _, err = GenerateToken(expired, "ops", []string{RoleAdmin})
	require.NoError(t, err)
	w := serve(router, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestRequireRole(t *testing.T) {
	router := adminRouter()
	token, _, err := GenerateToken(testJWT, "reader", []string{"viewer"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(router, bearer(token)).Code)

	bare := gin.New()
	bare.Use(RequireRole(RoleAdmin))
	bare.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusForbidden, serve(bare, httptest.NewRequest(http.MethodGet, "/admin", nil)).Code)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://ops.example.com"}, false))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(router, req)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	open := gin.New()
	open.Use(CORS(nil, false), AccessLog())
	open.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w = serve(open, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
