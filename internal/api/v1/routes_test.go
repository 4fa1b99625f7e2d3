package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

func TestGetRoutes(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	env := newTestEnv(t, devices.RouterOptions{})
	rec := env.do(http.MethodGet, "/api/v1/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, "normal", got[0]["kind"])
	assert.Equal(t, "Earpiece", got[0]["display_name"])
	assert.Equal(t, true, got[0]["available"])
	assert.Equal(t, "Bluetooth Headset", got[3]["display_name"])
	assert.Equal(t, false, got[3]["available"])
}

func TestSetRouteAvailability(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})

	rec := env.do(http.MethodPut, "/api/v1/routes/bluetooth", `{"available":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Changed)
	assert.Equal(t, devices.KindBluetoothHeadset, resp.Kind)
	assert.True(t, env.router.Available(devices.KindBluetoothHeadset))
	assert.True(t, env.am.BluetoothScoOn())

	rec = env.do(http.MethodPut, "/api/v1/routes/bluetooth_headset", `{"available":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Changed, "repeated availability is not a transition")
	assert.Equal(t, 1, env.am.Calls().ScoStarts)

	rec = env.do(http.MethodPut, "/api/v1/routes/normal", `{"available":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPut, "/api/v1/routes/radio", `{"available":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutingSwitches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})

	rec := env.do(http.MethodPost, "/api/v1/routes/speakerphone", `{"on":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, env.am.SpeakerphoneOn())

	rec = env.do(http.MethodPost, "/api/v1/routes/sco", `{"on":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, env.am.BluetoothScoOn())
}

func TestDeviceEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{ProximitySpeaker: true})

	rec := env.do(http.MethodPost, "/api/v1/events/bluetooth", `{"connected":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, env.router.Available(devices.KindBluetoothHeadset))

	rec = env.do(http.MethodPost, "/api/v1/events/headset", `{"state":true,"name":"h2w","microphone":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, env.router.Available(devices.KindWiredHeadset))

	rec = env.do(http.MethodPost, "/api/v1/events/sco", `{"previous":"connected","state":"disconnected"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/events/sco", `{"previous":"connected","state":"melted"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/events/proximity", `{"near":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = env.do(http.MethodPost, "/api/v1/events/proximity", `{"near":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, env.am.SpeakerphoneOn())
}

func TestNoisyEventPausesPlayback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})
	var notified atomic.Int32
	env.router.OnNoisy(func(context.Context) { notified.Add(1) })

	env.prepare(t)
	require.NoError(t, env.backend.SetState(context.Background(), soundbackend.ActionStart))

	rec := env.do(http.MethodPost, "/api/v1/events/noisy", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), notified.Load())
	assert.Equal(t, soundbackend.StatePaused, env.backend.Playback().State())
	assert.Equal(t, soundbackend.StateRunning, env.backend.Record().State())
}
