// Package v1 implements the JSON control API under /api/v1.
package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo       *echo.Echo
	Group      *echo.Group
	Backend    *soundbackend.Backend
	Router     *devices.Router
	Enumerator *devices.Enumerator

	log       logger.Logger
	startTime time.Time
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, backend *soundbackend.Backend, router *devices.Router, enumerator *devices.Enumerator) *Controller {
	c := &Controller{
		Echo:       e,
		Group:      e.Group("/api/v1"),
		Backend:    backend,
		Router:     router,
		Enumerator: enumerator,
		log:        logger.Global().Module("api").Module("v1"),
		startTime:  time.Now(),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/status", c.GetStatus)
	c.Group.POST("/engines/state", c.SetBackendState)
	c.Group.POST("/engines/:direction/state", c.SetEngineState)

	c.Group.GET("/devices", c.ListDevices)
	c.Group.POST("/devices/preferred", c.SetPreferredDevice)

	c.Group.GET("/routes", c.GetRoutes)
	c.Group.PUT("/routes/:kind", c.SetRouteAvailability)
	c.Group.POST("/routes/speakerphone", c.SetSpeakerphone)
	c.Group.POST("/routes/sco", c.SetBluetoothSco)

	events := c.Group.Group("/events")
	events.POST("/bluetooth", c.BluetoothEvent)
	events.POST("/headset", c.HeadsetPlugEvent)
	events.POST("/sco", c.ScoStateEvent)
	events.POST("/noisy", c.NoisyEvent)
	events.POST("/proximity", c.ProximityEvent)

	c.log.Debug("routes initialized", logger.Int("count", len(c.Echo.Routes())))
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an error body with a fresh correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes it as an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	c.log.Error("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.String("error", resp.Error),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()))
	return ctx.JSON(code, resp)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
