package soundbackend

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/hal/virtual"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

// newTestPlayback opens a playback engine on a 48 kHz card with a 4096 byte
// hardware minimum, which gives a 480 frame period and a 98304 byte buffer.
func newTestPlayback(t *testing.T, producer DataProducer, opts Options, mutate func(*virtual.Config)) (*Playback, *virtual.PlaybackStream) {
	t.Helper()
	b := manualBackend(t, func(c *virtual.Config) {
		c.MinBufferBytes = 4096
		if mutate != nil {
			mutate(c)
		}
	})
	p, err := NewPlayback(b, producer, DefaultDeviceID, opts)
	require.NoError(t, err)
	shutdownOnCleanup(t, p)

	streams := b.Playbacks()
	require.Len(t, streams, 1)
	return p, streams[0]
}

func TestPlaybackBufferGeometry(t *testing.T) {
	t.Parallel()
	t.Attr("component", "soundbackend")

	p, stream := newTestPlayback(t, &fakeProducer{}, Options{}, nil)

	assert.Equal(t, 48000, p.SampleRate(), "native rate is used when none is given")
	assert.Equal(t, 2, p.Channels())
	assert.Equal(t, 4096, p.MinBufferBytes())
	assert.Equal(t, 98304, p.Buffer().Len())
	assert.Equal(t, 24576, p.Buffer().Frames())
	assert.Equal(t, 1024, stream.BufferSizeInFrames())
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, p.Paused())
}

func TestNewPlaybackDeviceOpenFailure(t *testing.T) {
	t.Parallel()

	b := manualBackend(t, func(c *virtual.Config) {
		c.RejectOpen = func(dir hal.Direction, _ hal.StreamConfig) bool { return dir == hal.Output }
	})
	_, err := NewPlayback(b, &fakeProducer{}, DefaultDeviceID, Options{})
	require.ErrorIs(t, err, ErrDeviceOpen)
	assert.True(t, errors.IsCategory(err, errors.CategoryDeviceOpen))

	_, err = NewPlayback(b, &fakeProducer{}, DefaultDeviceID, Options{SampleRate: 44100, Channels: 3})
	require.ErrorIs(t, err, ErrDeviceOpen)
}

func TestPlaybackCallbackPullsPlayedFrames(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	rec := newCountingRecorder()
	p, stream := newTestPlayback(t, producer, Options{Recorder: rec}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, hal.PlayStatePlaying, stream.PlayState())
	assert.Equal(t, 480, stream.PositionNotificationPeriod())
	assert.Equal(t, 4096, stream.Queued(), "device buffer is prefilled with silence")

	stream.Tick(480)
	require.Eventually(t, func() bool { return p.Status().Frames == 480 }, waitFor, tick)
	assert.Equal(t, int64(1), producer.calls.Load())
	assert.Equal(t, int64(480), producer.frames.Load())
	assert.Equal(t, 4096, stream.Queued())
	assert.Equal(t, 1, rec.status(metrics.StatusOK))
}

func TestPlaybackStartIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	p, stream := newTestPlayback(t, &fakeProducer{}, Options{Recorder: rec}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	first := p.worker
	require.NotNil(t, first)

	require.NoError(t, p.SetState(ctx, ActionStart))
	assert.Same(t, first, p.worker, "second start must not spawn another worker")
	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, hal.PlayStatePlaying, stream.PlayState())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []StreamState{StateStopped, StateStarting, StateRunning}, rec.states)
}

func TestPlaybackPauseThenStartReusesResources(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	p, stream := newTestPlayback(t, producer, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	buf := p.Buffer()
	w := p.worker

	require.NoError(t, p.SetState(ctx, ActionPause))
	require.NoError(t, p.SetState(ctx, ActionPause), "pause is idempotent")
	assert.Equal(t, StatePaused, p.State())
	assert.True(t, p.Paused())
	assert.Equal(t, hal.PlayStateStopped, stream.PlayState())
	assert.Zero(t, stream.PositionNotificationPeriod())
	assert.False(t, w.exited(), "pause keeps the worker")
	assert.Zero(t, stream.Tick(480), "a paused stream does not advance")

	require.NoError(t, p.SetState(ctx, ActionStart))
	assert.Equal(t, StateRunning, p.State())
	assert.Same(t, buf, p.Buffer())
	assert.Same(t, w, p.worker)

	stream.Tick(480)
	require.Eventually(t, func() bool { return producer.calls.Load() == 1 }, waitFor, tick)
}

func TestPlaybackStopTearsDownWorker(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	p, stream := newTestPlayback(t, producer, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	w := p.worker

	require.NoError(t, p.SetState(ctx, ActionStop))
	assert.Equal(t, StateStopped, p.State())
	assert.Nil(t, p.worker)
	assert.True(t, w.exited())
	assert.False(t, stream.Released(), "stop keeps the stream")

	require.NoError(t, p.SetState(ctx, ActionStart))
	assert.NotSame(t, w, p.worker, "start after stop creates a fresh worker")

	stream.Tick(480)
	require.Eventually(t, func() bool { return producer.calls.Load() == 1 }, waitFor, tick)
}

func TestPlaybackShutdownIsTerminal(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	p, stream := newTestPlayback(t, producer, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	require.NoError(t, p.SetState(ctx, ActionShutdown))
	assert.Equal(t, StateTerminated, p.State())
	assert.True(t, stream.Released())
	assert.Positive(t, stream.Flushes(), "stop/flush release strategy flushes")

	for _, action := range []Action{ActionStart, ActionPause, ActionStop, ActionShutdown} {
		require.NoError(t, p.SetState(ctx, action))
		assert.Equal(t, StateTerminated, p.State())
	}
	assert.Equal(t, hal.PlayStateStopped, stream.PlayState())
	assert.False(t, p.SetPreferredDevice(nil))
	assert.Nil(t, p.RoutedDevice())
	assert.Zero(t, producer.calls.Load())
}

func TestPlaybackNoDataKeepsRunning(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	producer.status.Store(StatusNoData)
	rec := newCountingRecorder()
	p, stream := newTestPlayback(t, producer, Options{Recorder: rec}, nil)
	producer.fill = func(frames int) {
		data := p.Buffer().Bytes()[:frames*4]
		for i := range data {
			data[i] = 0x55
		}
	}
	ctx := context.Background()
	require.NoError(t, p.SetState(ctx, ActionStart))

	for i := 1; i <= 5; i++ {
		stream.Tick(480)
		want := int64(480 * i)
		require.Eventually(t, func() bool { return p.Status().Frames == want }, waitFor, tick)
	}

	assert.Equal(t, StateRunning, p.State())
	assert.NoError(t, p.Err())
	assert.Equal(t, int64(5), producer.calls.Load())
	assert.Equal(t, 5, rec.status(metrics.StatusNoData))
	assert.Equal(t, make([]byte, 1920), p.Buffer().Bytes()[:1920], "no-data frames are played as silence")
}

func TestPlaybackFatalStatusTerminatesOnce(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	producer.status.Store(StatusBufferTooSmall)
	rec := newCountingRecorder()
	p, stream := newTestPlayback(t, producer, Options{Recorder: rec}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	w := p.worker

	stream.Tick(480)
	require.Eventually(t, func() bool { return p.State() == StateTerminated }, waitFor, tick)
	require.Eventually(t, w.exited, waitFor, tick)

	assert.True(t, stream.Released())
	err := p.Err()
	require.Error(t, err)
	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryProducer, ee.Category)
	assert.Equal(t, StatusBufferTooSmall, ee.GetContext()["status"])

	assert.Zero(t, stream.Tick(480), "released stream no longer plays")

	var wg sync.WaitGroup
	for _, action := range []Action{ActionStop, ActionShutdown, ActionStart, ActionPause} {
		wg.Go(func() {
			assert.NoError(t, p.SetState(ctx, action))
		})
	}
	wg.Wait()

	terminations, _, _ := rec.snapshot()
	assert.Equal(t, 1, terminations)
	assert.Equal(t, int64(1), producer.calls.Load())
	assert.Equal(t, StateTerminated, p.Status().State)
	assert.NotEmpty(t, p.Status().Error)
}

func TestPlaybackStartRetriesIllegalState(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	p, stream := newTestPlayback(t, &fakeProducer{}, Options{Recorder: rec},
		func(c *virtual.Config) { c.IllegalStateStarts = 2 })

	require.NoError(t, p.SetState(context.Background(), ActionStart))
	_, retries, _ := rec.snapshot()
	assert.Equal(t, 2, retries)
	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, hal.PlayStatePlaying, stream.PlayState())
}

func TestPlaybackStopInterruptsStartRetry(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	p, _ := newTestPlayback(t, &fakeProducer{}, Options{Recorder: rec},
		func(c *virtual.Config) { c.IllegalStateStarts = -1 })
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		startErr error
	)
	wg.Go(func() { startErr = p.SetState(ctx, ActionStart) })

	require.Eventually(t, func() bool {
		_, retries, _ := rec.snapshot()
		return retries > 0
	}, waitFor, tick)

	require.NoError(t, p.SetState(ctx, ActionStop))
	wg.Wait()

	require.ErrorIs(t, startErr, context.Canceled)
	assert.True(t, errors.IsCategory(startErr, errors.CategoryCancellation))
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, p.Paused())
}

func TestPlaybackStopInterruptsQueuedStarts(t *testing.T) {
	t.Parallel()

	rec := newCountingRecorder()
	p, _ := newTestPlayback(t, &fakeProducer{}, Options{Recorder: rec},
		func(c *virtual.Config) { c.IllegalStateStarts = -1 })
	ctx := context.Background()

	pendingStarts := func() int {
		p.startMu.Lock()
		defer p.startMu.Unlock()
		return len(p.cancelStarts)
	}

	var (
		wg            sync.WaitGroup
		first, queued error
	)
	wg.Go(func() { first = p.SetState(ctx, ActionStart) })
	require.Eventually(t, func() bool {
		_, retries, _ := rec.snapshot()
		return retries > 0
	}, waitFor, tick)

	// second Start waits on mu behind the retrying one
	wg.Go(func() { queued = p.SetState(ctx, ActionStart) })
	require.Eventually(t, func() bool { return pendingStarts() == 2 }, waitFor, tick)

	stopped := make(chan error, 1)
	go func() { stopped <- p.SetState(ctx, ActionStop) }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("stop did not interrupt the retrying start")
	}
	wg.Wait()

	require.ErrorIs(t, first, context.Canceled)
	require.ErrorIs(t, queued, context.Canceled)
	assert.Equal(t, StateStopped, p.State())
	assert.Zero(t, pendingStarts())
}

func TestPlaybackStartHonoursContextDeadline(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayback(t, &fakeProducer{}, Options{},
		func(c *virtual.Config) { c.IllegalStateStarts = -1 })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := p.SetState(ctx, ActionStart)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateStopped, p.State())
}

func TestPlaybackPreferredDevice(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayback(t, &fakeProducer{}, Options{}, nil)
	assert.Equal(t, "earpiece", p.RoutedDevice().ID)

	speaker := hal.NewDeviceInfo("speaker", "Speaker", hal.DeviceBuiltinSpeaker, hal.Output, false)
	assert.True(t, p.SetPreferredDevice(&speaker))
	assert.Equal(t, "speaker", p.RoutedDevice().ID)

	fixed, _ := newTestPlayback(t, &fakeProducer{}, Options{},
		func(c *virtual.Config) { c.Capabilities.PreferredDevice = false })
	assert.False(t, fixed.SetPreferredDevice(&speaker))
}

func TestPlaybackDebugTap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	producer := &fakeProducer{}
	p, stream := newTestPlayback(t, producer, Options{TapDir: dir}, nil)
	ctx := context.Background()

	require.NoError(t, p.SetState(ctx, ActionStart))
	stream.Tick(480)
	require.Eventually(t, func() bool { return p.Status().Frames == 480 }, waitFor, tick)
	require.NoError(t, p.SetState(ctx, ActionShutdown))

	files, err := filepath.Glob(filepath.Join(dir, "playback-*.wav"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	pcm, err := audiotap.Load(files[0])
	require.NoError(t, err)
	assert.Equal(t, 48000, pcm.SampleRate)
	assert.Equal(t, 2, pcm.Channels)
	assert.Len(t, pcm.Data, 1920)
}

func TestPlaybackRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlayback(t, &fakeProducer{}, Options{}, nil)
	err := p.SetState(context.Background(), Action(42))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
