package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/logger"
)

// AvailabilityRequest toggles one route kind.
type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// AvailabilityResponse reports the routing table after a change.
type AvailabilityResponse struct {
	Kind    devices.Kind           `json:"kind"`
	Changed bool                   `json:"changed"`
	Routes  []devices.Availability `json:"routes"`
}

// SwitchRequest turns a routing switch on or off.
type SwitchRequest struct {
	On bool `json:"on"`
}

// ConnectionEvent reports a bluetooth headset connecting or disconnecting.
type ConnectionEvent struct {
	Connected bool `json:"connected"`
}

// ProximityEvent reports the proximity sensor reading.
type ProximityEvent struct {
	Near bool `json:"near"`
}

// GetRoutes handles GET /api/v1/routes.
func (c *Controller) GetRoutes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Router.Table())
}

// SetRouteAvailability handles PUT /api/v1/routes/:kind.
func (c *Controller) SetRouteAvailability(ctx echo.Context) error {
	kind, err := devices.ParseKind(ctx.Param("kind"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid route kind", http.StatusBadRequest)
	}
	var req AvailabilityRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	changed, err := c.Router.SetAvailable(kind, req.Available)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to change route availability", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, AvailabilityResponse{
		Kind:    kind,
		Changed: changed,
		Routes:  c.Router.Table(),
	})
}

// SetSpeakerphone handles POST /api/v1/routes/speakerphone.
func (c *Controller) SetSpeakerphone(ctx echo.Context) error {
	var req SwitchRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	c.Router.SetSpeakerphone(req.On)
	return ctx.NoContent(http.StatusNoContent)
}

// SetBluetoothSco handles POST /api/v1/routes/sco.
func (c *Controller) SetBluetoothSco(ctx echo.Context) error {
	var req SwitchRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	c.Router.SetBluetoothSco(req.On)
	return ctx.NoContent(http.StatusNoContent)
}

// BluetoothEvent handles POST /api/v1/events/bluetooth.
func (c *Controller) BluetoothEvent(ctx echo.Context) error {
	var ev ConnectionEvent
	if err := ctx.Bind(&ev); err != nil {
		return c.HandleError(ctx, err, "Invalid event", http.StatusBadRequest)
	}
	c.Router.OnBluetoothHeadsetConnectStatusChange(ev.Connected)
	return ctx.NoContent(http.StatusAccepted)
}

// HeadsetPlugEvent handles POST /api/v1/events/headset.
func (c *Controller) HeadsetPlugEvent(ctx echo.Context) error {
	var ev devices.HeadsetPlugEvent
	if err := ctx.Bind(&ev); err != nil {
		return c.HandleError(ctx, err, "Invalid event", http.StatusBadRequest)
	}
	c.Router.HandleHeadsetPlug(ev)
	return ctx.NoContent(http.StatusAccepted)
}

// ScoStateEvent handles POST /api/v1/events/sco.
func (c *Controller) ScoStateEvent(ctx echo.Context) error {
	var ev devices.ScoStateEvent
	if err := ctx.Bind(&ev); err != nil {
		return c.HandleError(ctx, err, "Invalid event", http.StatusBadRequest)
	}
	c.Router.HandleScoState(ev)
	return ctx.NoContent(http.StatusAccepted)
}

// NoisyEvent handles POST /api/v1/events/noisy.
func (c *Controller) NoisyEvent(ctx echo.Context) error {
	c.log.Debug("noisy event received", logger.String("ip", ctx.RealIP()))
	c.Router.HandleNoisy(ctx.Request().Context())
	return ctx.NoContent(http.StatusAccepted)
}

// ProximityEvent handles POST /api/v1/events/proximity.
func (c *Controller) ProximityEvent(ctx echo.Context) error {
	var ev ProximityEvent
	if err := ctx.Bind(&ev); err != nil {
		return c.HandleError(ctx, err, "Invalid event", http.StatusBadRequest)
	}
	c.Router.HandleProximity(ev.Near)
	return ctx.NoContent(http.StatusAccepted)
}
