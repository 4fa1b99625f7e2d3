package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

// StatusResponse wraps the backend snapshot with server uptime.
type StatusResponse struct {
	soundbackend.BackendStatus
	Uptime string `json:"uptime"`
}

// StateRequest asks an engine to perform a lifecycle action.
type StateRequest struct {
	Action string `json:"action"`
}

// StateResponse reports the engine states after an action.
type StateResponse struct {
	Action   string `json:"action"`
	Playback string `json:"playback,omitempty"`
	Record   string `json:"record,omitempty"`
}

// GetStatus handles GET /api/v1/status.
func (c *Controller) GetStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, StatusResponse{
		BackendStatus: c.Backend.Status(),
		Uptime:        time.Since(c.startTime).Round(time.Second).String(),
	})
}

// SetBackendState handles POST /api/v1/engines/state.
func (c *Controller) SetBackendState(ctx echo.Context) error {
	var req StateRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	action, err := soundbackend.ParseAction(req.Action)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid action", http.StatusBadRequest)
	}

	if err := c.Backend.SetState(ctx.Request().Context(), action); err != nil {
		return c.HandleError(ctx, err, "Failed to change engine state", statusFor(err))
	}
	c.log.Info("engine state changed",
		logger.String("action", action.String()),
		logger.String("ip", ctx.RealIP()))
	return ctx.JSON(http.StatusOK, c.stateResponse(action))
}

// SetEngineState handles POST /api/v1/engines/:direction/state.
func (c *Controller) SetEngineState(ctx echo.Context) error {
	dir, err := hal.ParseDirection(ctx.Param("direction"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid direction", http.StatusBadRequest)
	}
	var req StateRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	action, err := soundbackend.ParseAction(req.Action)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid action", http.StatusBadRequest)
	}

	if err := c.Backend.SetEngineState(ctx.Request().Context(), dir, action); err != nil {
		return c.HandleError(ctx, err, "Failed to change engine state", statusFor(err))
	}
	c.log.Info("engine state changed",
		logger.String("direction", dir.String()),
		logger.String("action", action.String()))
	return ctx.JSON(http.StatusOK, c.stateResponse(action))
}

func (c *Controller) stateResponse(action soundbackend.Action) StateResponse {
	resp := StateResponse{Action: action.String()}
	if p := c.Backend.Playback(); p != nil {
		resp.Playback = p.State().String()
	}
	if r := c.Backend.Record(); r != nil {
		resp.Record = r.State().String()
	}
	return resp
}
