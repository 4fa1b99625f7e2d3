package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/devices"
	"github.com/tphakala/soundbackend/internal/hal/virtual"
)

func TestListAndPrint(t *testing.T) {
	t.Parallel()

	cfg := virtual.DefaultConfig()
	cfg.Clock = virtual.ClockManual
	hw, err := virtual.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hw.Close() })

	entries, err := List(devices.NewEnumerator(hw, 0))
	require.NoError(t, err)

	// outputs first: earpiece, speaker, telephony; then mic, telephony
	require.Len(t, entries, 5)
	assert.Equal(t, "earpiece", entries[0].ID)
	assert.Equal(t, "output", entries[0].Direction)
	assert.Equal(t, devices.KindNormal, entries[0].Kind)
	assert.Equal(t, devices.KindInternalSpeaker, entries[1].Kind)
	assert.Equal(t, "Speaker", entries[1].DisplayType)
	assert.Equal(t, "mic", entries[3].ID)
	assert.Equal(t, "input", entries[3].Direction)

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, entries))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "DIRECTION"))
	assert.Contains(t, lines[1], "earpiece")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "*"))
}
