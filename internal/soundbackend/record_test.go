package soundbackend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/virtual"
)

type captureAttempt struct {
	rate, channels, buffer int
}

func TestRecordProbeOrder(t *testing.T) {
	t.Parallel()
	t.Attr("component", "soundbackend")

	var attempts []captureAttempt
	b := manualBackend(t, func(c *virtual.Config) {
		c.NativeRate = 16000
		c.SupportedRates = []int{44100, 16000}
		c.MinBufferBytes = 640
		c.RejectOpen = func(dir hal.Direction, cfg hal.StreamConfig) bool {
			if dir != hal.Input {
				return false
			}
			attempts = append(attempts, captureAttempt{cfg.SampleRate, cfg.Channels, cfg.BufferSizeBytes})
			return cfg.Channels == 1
		}
	})

	r := NewRecord(b, &fakeConsumer{}, DefaultDeviceID, Options{})
	shutdownOnCleanup(t, r)

	assert.Equal(t, []captureAttempt{
		{16000, 1, 1280}, {16000, 1, 640},
		{44100, 1, 1280}, {44100, 1, 640},
		{16000, 2, 1280},
	}, attempts, "mono before stereo, native rate first, larger buffer first")

	require.True(t, r.Functional())
	assert.Equal(t, 16000, r.SampleRate())
	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 1280, r.Buffer().Len())
	assert.Equal(t, 160, r.periodFrames, "non-blocking capture polls every 20ms")
}

func TestRecordFallsBackToSmallerBuffer(t *testing.T) {
	t.Parallel()

	b := manualBackend(t, func(c *virtual.Config) {
		c.MinBufferBytes = 960
		c.RejectOpen = func(dir hal.Direction, cfg hal.StreamConfig) bool {
			return dir == hal.Input && cfg.BufferSizeBytes > 960
		}
	})

	r := NewRecord(b, &fakeConsumer{}, DefaultDeviceID, Options{})
	shutdownOnCleanup(t, r)

	assert.Equal(t, 48000, r.SampleRate())
	assert.Equal(t, 1, r.Channels())
	assert.Equal(t, 960, r.Buffer().Len())
}

func TestRecordWithoutStream(t *testing.T) {
	t.Parallel()

	b := manualBackend(t, func(c *virtual.Config) {
		c.RejectOpen = func(dir hal.Direction, _ hal.StreamConfig) bool { return dir == hal.Input }
	})

	r := NewRecord(b, &fakeConsumer{}, DefaultDeviceID, Options{})
	assert.False(t, r.Functional())
	assert.Equal(t, 48000, r.SampleRate())
	assert.Equal(t, 1, r.Channels())
	assert.Equal(t, 2, r.Buffer().Len())

	ctx := context.Background()
	for _, action := range []Action{ActionStart, ActionPause, ActionStop, ActionShutdown} {
		require.NoError(t, r.SetState(ctx, action))
	}
	assert.Equal(t, StateStopped, r.State())
	assert.False(t, r.SetPreferredDevice(nil))
	assert.Nil(t, r.RoutedDevice())
	assert.False(t, r.Status().Functional)
}

func newTestRecord(t *testing.T, consumer DataConsumer, opts Options) (*Record, *virtual.CaptureStream) {
	t.Helper()
	b := manualBackend(t, nil)
	r := NewRecord(b, consumer, DefaultDeviceID, opts)
	shutdownOnCleanup(t, r)

	streams := b.Captures()
	require.Len(t, streams, 1)
	return r, streams[0]
}

func TestRecordNonBlockingPushesFrames(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{}
	r, stream := newTestRecord(t, consumer, Options{})
	ctx := context.Background()

	// 48 kHz mono, 960 byte minimum doubled to 1920 bytes.
	require.Equal(t, 1920, r.Buffer().Len())
	require.NoError(t, r.SetState(ctx, ActionStart))
	assert.Equal(t, StateRunning, r.State())
	assert.Equal(t, 960, stream.PositionNotificationPeriod())

	stream.Tick(960)
	require.Eventually(t, func() bool { return consumer.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int64(960), consumer.frames.Load())

	consumer.status.Store(42)
	stream.Tick(960)
	require.Eventually(t, func() bool { return r.Status().Frames == 1920 }, waitFor, tick)
	assert.Equal(t, StateRunning, r.State(), "consumer status is only logged")
}

func TestRecordBlockingReadsOneMinimumBuffer(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{}
	r, stream := newTestRecord(t, consumer, Options{BlockingCapture: true})
	ctx := context.Background()

	require.NoError(t, r.SetState(ctx, ActionStart))
	assert.Equal(t, 480, stream.PositionNotificationPeriod())

	stream.Tick(480)
	require.Eventually(t, func() bool { return consumer.calls.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int64(480), consumer.frames.Load())

	require.NoError(t, r.SetState(ctx, ActionStop), "stop must not hang on a blocked read")
}

func TestRecordReadErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{}
	rec := newCountingRecorder()
	r, stream := newTestRecord(t, consumer, Options{Recorder: rec})
	ctx := context.Background()

	require.NoError(t, r.SetState(ctx, ActionStart))

	stream.Tick(1000)
	require.Eventually(t, func() bool {
		_, _, readErrors := rec.snapshot()
		return readErrors == 1
	}, waitFor, tick)
	assert.Zero(t, consumer.calls.Load())
	assert.Equal(t, StateRunning, r.State())

	// a fresh start discards the overrun data and capture resumes
	require.NoError(t, r.SetState(ctx, ActionPause))
	require.NoError(t, r.SetState(ctx, ActionStart))
	stream.Tick(960)
	require.Eventually(t, func() bool { return consumer.calls.Load() == 1 }, waitFor, tick)
}

func TestRecordPauseStopAndShutdown(t *testing.T) {
	t.Parallel()

	consumer := &fakeConsumer{}
	r, stream := newTestRecord(t, consumer, Options{})
	ctx := context.Background()

	require.NoError(t, r.SetState(ctx, ActionStart))
	w := r.worker
	buf := r.Buffer()

	require.NoError(t, r.SetState(ctx, ActionPause))
	assert.Equal(t, StatePaused, r.State())
	assert.Equal(t, hal.RecordStateStopped, stream.RecordingState())
	assert.Zero(t, stream.PositionNotificationPeriod())
	assert.Zero(t, stream.Tick(960))

	require.NoError(t, r.SetState(ctx, ActionStart))
	assert.Same(t, w, r.worker)
	assert.Same(t, buf, r.Buffer())

	require.NoError(t, r.SetState(ctx, ActionStop))
	assert.Equal(t, StateStopped, r.State())
	assert.True(t, w.exited())
	assert.False(t, stream.Released())

	require.NoError(t, r.SetState(ctx, ActionShutdown))
	assert.Equal(t, StateTerminated, r.State())
	assert.True(t, stream.Released())

	require.NoError(t, r.SetState(ctx, ActionStart))
	assert.Equal(t, StateTerminated, r.State())
	assert.Zero(t, consumer.calls.Load())
}

func TestRecordPreferredDevice(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecord(t, &fakeConsumer{}, Options{})
	assert.Equal(t, "mic", r.RoutedDevice().ID)

	headset := hal.NewDeviceInfo("bt-mic", "Headset", hal.DeviceBluetoothSCO, hal.Input, false)
	assert.True(t, r.SetPreferredDevice(&headset))
	assert.Equal(t, "bt-mic", r.RoutedDevice().ID)
}

func TestRecordDebugTap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	consumer := &fakeConsumer{}
	r, stream := newTestRecord(t, consumer, Options{TapDir: dir})
	ctx := context.Background()

	require.NoError(t, r.SetState(ctx, ActionStart))
	stream.Tick(960)
	require.Eventually(t, func() bool { return consumer.calls.Load() == 1 }, waitFor, tick)
	require.NoError(t, r.SetState(ctx, ActionShutdown))

	files, err := filepath.Glob(filepath.Join(dir, "capture-*.wav"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	pcm, err := audiotap.Load(files[0])
	require.NoError(t, err)
	assert.Equal(t, 48000, pcm.SampleRate)
	assert.Equal(t, 1, pcm.Channels)
	assert.Len(t, pcm.Data, 1920)
}
