package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

// NewMetrics records request counts and latency per route template. Unknown
// routes are grouped under "unmatched".
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if m == nil {
			return next
		}
		return func(c echo.Context) error {
			done := m.Begin()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			done(c.Request().Method, route, responseCode(c, err))
			return err
		}
	}
}

// responseCode is the status the error handler will send for err.
func responseCode(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	if c.Response().Committed {
		return c.Response().Status
	}
	return http.StatusInternalServerError
}
