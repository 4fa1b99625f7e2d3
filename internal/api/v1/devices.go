package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// DeviceResponse describes one hardware endpoint.
type DeviceResponse struct {
	hal.DeviceInfo
	Direction   string       `json:"direction"`
	DisplayType string       `json:"display_type,omitempty"`
	Kind        devices.Kind `json:"kind"`
}

// PreferredDeviceRequest routes an engine to a device.
type PreferredDeviceRequest struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
}

// PreferredDeviceResponse reports whether the engine accepted the device.
type PreferredDeviceResponse struct {
	Device  DeviceResponse `json:"device"`
	Applied bool           `json:"applied"`
}

func deviceResponse(d hal.DeviceInfo) DeviceResponse {
	return DeviceResponse{
		DeviceInfo:  d,
		Direction:   d.Direction.String(),
		DisplayType: devices.TypeDisplayName(d.Type),
		Kind:        devices.KindOf(d),
	}
}

// ListDevices handles GET /api/v1/devices. The optional direction query
// parameter limits the listing; without it both directions are returned.
func (c *Controller) ListDevices(ctx echo.Context) error {
	dirs := []hal.Direction{hal.Output, hal.Input}
	if q := ctx.QueryParam("direction"); q != "" {
		dir, err := hal.ParseDirection(q)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid direction", http.StatusBadRequest)
		}
		dirs = []hal.Direction{dir}
	}
	if ctx.QueryParam("refresh") == "true" {
		c.Enumerator.Refresh()
	}

	resp := []DeviceResponse{}
	for _, dir := range dirs {
		list, err := c.Enumerator.Devices(dir)
		if err != nil {
			return c.HandleError(ctx, err, "Failed to enumerate devices", http.StatusInternalServerError)
		}
		for _, d := range list {
			resp = append(resp, deviceResponse(d))
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// SetPreferredDevice handles POST /api/v1/devices/preferred.
func (c *Controller) SetPreferredDevice(ctx echo.Context) error {
	var req PreferredDeviceRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	dir, err := hal.ParseDirection(req.Direction)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid direction", http.StatusBadRequest)
	}

	dev, err := c.Enumerator.FindByID(dir, req.ID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to enumerate devices", http.StatusInternalServerError)
	}
	if dev == nil {
		return c.HandleError(ctx, nil, "Device not found", http.StatusNotFound)
	}

	applied := c.Backend.SetPreferredDevice(dev)
	c.log.Info("preferred device requested",
		logger.String("device_id", dev.ID),
		logger.String("direction", dir.String()),
		logger.Bool("applied", applied))
	return ctx.JSON(http.StatusOK, PreferredDeviceResponse{
		Device:  deviceResponse(*dev),
		Applied: applied,
	})
}
