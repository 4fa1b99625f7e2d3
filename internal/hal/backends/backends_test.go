package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/conf"
	"github.com/tphakala/soundbackend/internal/hal"
)

func TestNewVirtualAppliesReleaseOverride(t *testing.T) {
	t.Parallel()
	t.Attr("component", "backends")

	settings := conf.Defaults().Audio
	settings.Backend = "Virtual"
	settings.ReleaseStrategy = "direct"
	settings.Virtual.NativeRate = 44100

	b, err := New(&settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, "virtual", b.Name())
	assert.Equal(t, hal.ReleaseDirect, b.Capabilities().Release)

	rate, err := b.NativeOutputSampleRate()
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)
}

func TestNewVirtualKeepsDefaultStrategy(t *testing.T) {
	t.Parallel()

	settings := conf.Defaults().Audio
	settings.Backend = conf.BackendVirtual

	b, err := New(&settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	assert.Equal(t, hal.ReleaseStopFlush, b.Capabilities().Release)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	settings := conf.Defaults().Audio
	settings.Backend = "oss"
	_, err := New(&settings)
	require.Error(t, err)

	settings.Backend = conf.BackendVirtual
	settings.ReleaseStrategy = "reflect"
	_, err = New(&settings)
	require.Error(t, err)
}
