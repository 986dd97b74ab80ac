package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(origins []string, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewMiddleware(origins, logger).SetupMiddleware(router)
	router.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	return router
}

func request(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantOrigin string
		wantVary   bool
	}{
		{"allow-listed origin is reflected", []string{"http://localhost:3000", "*"}, "http://localhost:3000", "http://localhost:3000", true},
		{"other origin falls back to wildcard", []string{"http://localhost:3000", "*"}, "https://evil.example", "*", false},
		{"no origin header uses wildcard", []string{"*"}, "", "*", false},
		{"strict list rejects unknown origin", []string{"http://localhost:3000"}, "https://evil.example", "", false},
		{"trailing slash in config is ignored", []string{"http://localhost:8000/"}, "http://localhost:8000", "http://localhost:8000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.origins, zerolog.Nop())
			headers := map[string]string{}
			if tt.origin != "" {
				headers["Origin"] = tt.origin
			}

			w := request(router, http.MethodGet, "/ok", headers)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantVary {
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	router := newTestRouter([]string{"*"}, zerolog.Nop())

	w := request(router, http.MethodOptions, "/api/prices", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestRequestID(t *testing.T) {
	router := newTestRouter([]string{"*"}, zerolog.Nop())

	w := request(router, http.MethodGet, "/ok", nil)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	w = request(router, http.MethodGet, "/ok", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequestLogger_SkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter([]string{"*"}, zerolog.New(&buf))

	request(router, http.MethodGet, "/health", nil)
	assert.Empty(t, buf.String())

	request(router, http.MethodGet, "/ok", map[string]string{RequestIDHeader: "req-1"})
	assert.Contains(t, buf.String(), `"path":"/ok"`)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"component":"http"`)
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter([]string{"*"}, zerolog.New(&buf))

	w := request(router, http.MethodGet, "/panic", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
	assert.Contains(t, buf.String(), "Recovered from panic")
}

func TestSecurityHeaders(t *testing.T) {
	w := request(newTestRouter([]string{"*"}, zerolog.Nop()), http.MethodGet, "/ok", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
