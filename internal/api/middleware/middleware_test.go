package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMetricsMiddlewareRecordsRouteTemplates(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	registry := prometheus.NewRegistry()
	m, err := metrics.NewHTTPMetrics(registry)
	require.NoError(t, err)

	e := echo.New()
	e.Use(NewMetrics(m))
	e.GET("/engines/:direction", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "no")
	})

	serve(e, http.MethodGet, "/engines/input")
	serve(e, http.MethodGet, "/engines/output")
	serve(e, http.MethodGet, "/fail")

	expected := `
# HELP soundbackend_http_requests_total Control API requests by method, route template and status code
# TYPE soundbackend_http_requests_total counter
soundbackend_http_requests_total{code="200",method="GET",route="/engines/:direction"} 2
soundbackend_http_requests_total{code="418",method="GET",route="/fail"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "soundbackend_http_requests_total"))

	expectedInFlight := `
# HELP soundbackend_http_requests_in_flight Control API requests being served
# TYPE soundbackend_http_requests_in_flight gauge
soundbackend_http_requests_in_flight 0
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expectedInFlight), "soundbackend_http_requests_in_flight"))
}

func TestMetricsMiddlewareNilIsPassThrough(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewMetrics(nil))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, http.MethodGet, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	cfg := DefaultSecurityConfig()
	e := echo.New()
	e.Use(NewCORS(cfg), NewSecureHeaders(cfg), NewRequestLogger(logger.Global().Module("test"), false))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := serve(e, http.MethodGet, "/ok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Equal(t, "default-src 'none'", rec.Header().Get(echo.HeaderContentSecurityPolicy))
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "no-referrer", rec.Header().Get(echo.HeaderReferrerPolicy))
}

func TestControlGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remote bool
		method string
		peer   string
		want   int
	}{
		{"loopback v4 write", false, http.MethodPost, "127.0.0.1:5000", http.StatusOK},
		{"loopback v6 write", false, http.MethodPut, "[::1]:5000", http.StatusOK},
		{"remote read", false, http.MethodGet, "192.0.2.10:5000", http.StatusOK},
		{"remote write", false, http.MethodPost, "192.0.2.10:5000", http.StatusForbidden},
		{"remote write allowed", true, http.MethodPost, "192.0.2.10:5000", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultSecurityConfig()
			cfg.RemoteControl = tt.remote
			e := echo.New()
			e.Use(NewControlGuard(cfg))
			e.Any("/api", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/api", http.NoBody)
			req.RemoteAddr = tt.peer
			req.Header.Set("X-Forwarded-For", "127.0.0.1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewBodyLimit("8B"))
	e.POST("/in", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/in", strings.NewReader(`{"action":"start"}`))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
