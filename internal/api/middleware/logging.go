// Package middleware provides HTTP middleware components for the soundbackend control server.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/soundbackend/internal/logger"
)

// NewRequestLogger creates a request logging middleware. Successful requests
// are logged at debug level unless verbose is set; failures always at warn.
func NewRequestLogger(log logger.Logger, verbose bool) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, verbose, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, verbose bool, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}

			switch {
			case v.Error != nil:
				fields = append(fields, logger.Error(v.Error))
				log.Warn("request failed", fields...)
			case verbose:
				log.Info("request", fields...)
			default:
				log.Debug("request", fields...)
			}
			return nil
		},
	})
}
