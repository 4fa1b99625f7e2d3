package v1

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

func TestGetStatus(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	env := newTestEnv(t, devices.RouterOptions{})

	rec := env.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["initialized"])
	assert.Equal(t, "virtual", got["backend"])
	assert.Contains(t, got, "uptime")
	assert.NotContains(t, got, "playback")

	env.prepare(t)
	rec = env.do(http.MethodGet, "/api/v1/status", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["initialized"])
	assert.Equal(t, "Java", got["device_id"])
	assert.Contains(t, got, "playback")
	assert.Contains(t, got, "record")
}

func TestSetBackendStateBeforePrepare(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})

	rec := env.do(http.MethodPost, "/api/v1/engines/state", `{"action":"start"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
	assert.Contains(t, resp.Error, "not initialized")
}

func TestSetBackendState(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})
	env.prepare(t)

	tests := []struct {
		body     string
		code     int
		playback string
		record   string
	}{
		{`{"action":"start"}`, http.StatusOK, "running", "running"},
		{`{"action":"START"}`, http.StatusOK, "running", "running"},
		{`{"action":"pause"}`, http.StatusOK, "paused", "paused"},
		{`{"action":"rewind"}`, http.StatusBadRequest, "", ""},
		{`{"action":`, http.StatusBadRequest, "", ""},
		{`{"action":"stop"}`, http.StatusOK, "stopped", "stopped"},
		{`{"action":"shutdown"}`, http.StatusOK, "terminated", "terminated"},
	}
	// steps depend on each other
	for _, tt := range tests {
		rec := env.do(http.MethodPost, "/api/v1/engines/state", tt.body)
		require.Equal(t, tt.code, rec.Code, tt.body)
		if tt.code != http.StatusOK {
			continue
		}
		var resp StateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tt.playback, resp.Playback, tt.body)
		assert.Equal(t, tt.record, resp.Record, tt.body)
	}
}

func TestSetEngineState(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})
	env.prepare(t)

	rec := env.do(http.MethodPost, "/api/v1/engines/input/state", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, soundbackend.StateRunning, env.backend.Record().State())
	assert.Equal(t, soundbackend.StateStopped, env.backend.Playback().State())

	rec = env.do(http.MethodPost, "/api/v1/engines/playback/state", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, soundbackend.StateRunning, env.backend.Playback().State())

	rec = env.do(http.MethodPost, "/api/v1/engines/sideways/state", `{"action":"start"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
