package v1

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/devices"
)

func TestListDevices(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	env := newTestEnv(t, devices.RouterOptions{})

	tests := []struct {
		query string
		code  int
		ids   []string
	}{
		{"", http.StatusOK, []string{"earpiece", "speaker", "telephony-out", "mic", "telephony-in"}},
		{"?direction=output", http.StatusOK, []string{"earpiece", "speaker", "telephony-out"}},
		{"?direction=input&refresh=true", http.StatusOK, []string{"mic", "telephony-in"}},
		{"?direction=up", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			rec := env.do(http.MethodGet, "/api/v1/devices"+tt.query, "")
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			var got []map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			ids := make([]string, 0, len(got))
			for _, d := range got {
				ids = append(ids, d["id"].(string))
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestListDevicesDescribesKinds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})
	rec := env.do(http.MethodGet, "/api/v1/devices?direction=output", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)

	speaker := got[1]
	assert.Equal(t, "speaker", speaker["id"])
	assert.Equal(t, "builtin_speaker", speaker["type"])
	assert.Equal(t, "Speaker", speaker["display_type"])
	assert.Equal(t, "internal_speaker", speaker["kind"])
	assert.Equal(t, "output", speaker["direction"])
	assert.Equal(t, false, speaker["is_default"])
}

func TestSetPreferredDevice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, devices.RouterOptions{})

	rec := env.do(http.MethodPost, "/api/v1/devices/preferred", `{"id":"speaker","direction":"output"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PreferredDeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Applied, "no engines before prepare")

	env.prepare(t)
	rec = env.do(http.MethodPost, "/api/v1/devices/preferred", `{"id":"speaker","direction":"output"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Applied)
	assert.Equal(t, "speaker", resp.Device.ID)
	assert.Equal(t, "speaker", env.backend.Playback().RoutedDevice().ID)

	rec = env.do(http.MethodPost, "/api/v1/devices/preferred", `{"id":"telephony-in","direction":"input"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "telephony-in", env.backend.Record().RoutedDevice().ID)

	rec = env.do(http.MethodPost, "/api/v1/devices/preferred", `{"id":"speaker","direction":"input"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/devices/preferred", `{"id":"speaker","direction":"left"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
