package soundbackend

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/virtual"
)

func newTestBackend(t *testing.T, cfg Config) (*Backend, *virtual.Backend) {
	t.Helper()
	hw := manualBackend(t, nil)
	b := New(hw, cfg)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, hw
}

func TestPrepareAudioRegistersDevice(t *testing.T) {
	t.Parallel()
	t.Attr("component", "soundbackend")

	b, _ := newTestBackend(t, Config{})
	registrar := &fakeRegistrar{}

	require.NoError(t, b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{}))
	assert.True(t, b.Initialized())
	assert.Equal(t, "Java", b.DeviceID())

	require.Len(t, registrar.registered, 1)
	reg := registrar.registered[0]
	assert.Equal(t, "Java", reg.DeviceID)
	assert.Equal(t, "Java", reg.DisplayName)
	assert.Equal(t, 48000, reg.PlaybackSampleRate)
	assert.Equal(t, 2, reg.PlaybackChannels)
	assert.Same(t, b.Playback().Buffer(), reg.PlaybackBuffer)
	assert.Equal(t, 48000, reg.CaptureSampleRate)
	assert.Equal(t, 1, reg.CaptureChannels)
	assert.Equal(t, 1920, reg.CaptureBuffer.Len())
	assert.Same(t, b.Record().Buffer(), reg.CaptureBuffer)

	err := b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Len(t, registrar.registered, 1)
}

func TestPrepareAudioRegistrationRejected(t *testing.T) {
	t.Parallel()

	b, hw := newTestBackend(t, Config{DeviceID: "voice", DisplayName: "Voice"})
	registrar := &fakeRegistrar{status: -1}

	err := b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudio))
	assert.False(t, b.Initialized())
	assert.Nil(t, b.Playback())

	require.Len(t, hw.Playbacks(), 1)
	require.Len(t, hw.Captures(), 1)
	assert.True(t, hw.Playbacks()[0].Released(), "rejected engines release their streams")
	assert.True(t, hw.Captures()[0].Released())
}

func TestUnregister(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackend(t, Config{})
	registrar := &fakeRegistrar{}

	require.ErrorIs(t, b.Unregister(), ErrNotInitialized)

	require.NoError(t, b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{}))
	playback := b.Playback()

	require.NoError(t, b.Unregister())
	assert.False(t, b.Initialized())
	assert.Equal(t, []string{"Java"}, registrar.unregistered)
	assert.NotEqual(t, StateTerminated, playback.State(), "engines outlive the registration")
	require.ErrorIs(t, b.Unregister(), ErrNotInitialized)

	// a second prepare replaces the leftover engines
	require.NoError(t, b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{}))
	assert.Equal(t, StateTerminated, playback.State())
	assert.NotSame(t, playback, b.Playback())
	assert.Len(t, registrar.registered, 2)
}

func TestBackendSetStateDrivesBothEngines(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackend(t, Config{})
	ctx := context.Background()

	require.ErrorIs(t, b.SetState(ctx, ActionStart), ErrNotInitialized)

	registrar := &fakeRegistrar{}
	require.NoError(t, b.PrepareAudio(registrar, &fakeProducer{}, &fakeConsumer{}))
	playback, record := b.Playback(), b.Record()

	require.NoError(t, b.SetState(ctx, ActionStart))
	assert.Equal(t, StateRunning, playback.State())
	assert.Equal(t, StateRunning, record.State())

	require.NoError(t, b.SetState(ctx, ActionPause))
	assert.Equal(t, StatePaused, playback.State())
	assert.Equal(t, StatePaused, record.State())

	require.NoError(t, b.SetState(ctx, ActionStop))
	assert.Equal(t, StateStopped, playback.State())
	assert.Equal(t, StateStopped, record.State())

	require.NoError(t, b.Close(ctx))
	assert.Equal(t, StateTerminated, playback.State())
	assert.Equal(t, StateTerminated, record.State())
	assert.False(t, b.Initialized())
	assert.Equal(t, []string{"Java"}, registrar.unregistered)
	require.ErrorIs(t, b.SetState(ctx, ActionStart), ErrNotInitialized)
}

func TestBackendSetEngineState(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackend(t, Config{})
	ctx := context.Background()
	require.ErrorIs(t, b.SetEngineState(ctx, hal.Input, ActionStart), ErrNotInitialized)

	require.NoError(t, b.PrepareAudio(&fakeRegistrar{}, &fakeProducer{}, &fakeConsumer{}))
	require.NoError(t, b.SetEngineState(ctx, hal.Input, ActionStart))
	assert.Equal(t, StateRunning, b.Record().State())
	assert.Equal(t, StateStopped, b.Playback().State())

	require.NoError(t, b.SetEngineState(ctx, hal.Output, ActionStart))
	assert.Equal(t, StateRunning, b.Playback().State())
}

func TestHandleNoisy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		pauseOnNoisy bool
		want         StreamState
	}{
		{"pauses playback", true, StatePaused},
		{"ignored when disabled", false, StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, _ := newTestBackend(t, Config{PauseOnNoisy: tt.pauseOnNoisy})
			ctx := context.Background()
			require.NoError(t, b.PrepareAudio(&fakeRegistrar{}, &fakeProducer{}, &fakeConsumer{}))
			require.NoError(t, b.SetState(ctx, ActionStart))

			b.HandleNoisy(ctx)
			assert.Equal(t, tt.want, b.Playback().State())
			assert.Equal(t, StateRunning, b.Record().State(), "capture keeps running")
		})
	}
}

func TestBackendSetPreferredDevice(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackend(t, Config{})
	speaker := hal.NewDeviceInfo("speaker", "Speaker", hal.DeviceBuiltinSpeaker, hal.Output, false)
	assert.False(t, b.SetPreferredDevice(&speaker), "no engines yet")

	require.NoError(t, b.PrepareAudio(&fakeRegistrar{}, &fakeProducer{}, &fakeConsumer{}))
	assert.False(t, b.SetPreferredDevice(nil))

	mic := hal.NewDeviceInfo("telephony-in", "Telephony", hal.DeviceTelephony, hal.Input, false)
	assert.True(t, b.SetPreferredDevice(&speaker))
	assert.True(t, b.SetPreferredDevice(&mic))
	assert.Equal(t, "speaker", b.Playback().RoutedDevice().ID)
	assert.Equal(t, "telephony-in", b.Record().RoutedDevice().ID)
}

func TestBackendStatusJSON(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackend(t, Config{})
	before := b.Status()
	assert.False(t, before.Initialized)
	assert.Nil(t, before.Playback)

	require.NoError(t, b.PrepareAudio(&fakeRegistrar{}, &fakeProducer{}, &fakeConsumer{}))
	require.NoError(t, b.SetState(context.Background(), ActionStart))

	data, err := json.Marshal(b.Status())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "virtual", got["backend"])
	assert.Equal(t, true, got["initialized"])

	playback, ok := got["playback"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", playback["state"])
	assert.Equal(t, "output", playback["direction"])

	record, ok := got["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "input", record["direction"])
	assert.InDelta(t, 48000, record["sample_rate"], 0)
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	for _, action := range []Action{ActionStart, ActionPause, ActionStop, ActionShutdown} {
		got, err := ParseAction(action.String())
		require.NoError(t, err)
		assert.Equal(t, action, got)
	}

	got, err := ParseAction("  PAUSE ")
	require.NoError(t, err)
	assert.Equal(t, ActionPause, got)

	_, err = ParseAction("rewind")
	require.Error(t, err)

	assert.Equal(t, "action(9)", Action(9).String())
	assert.Equal(t, "state(42)", StreamState(42).String())
}
