package soundbackend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

const (
	defaultPlaybackChannels = 2
	defaultPlaybackPeriodMs = 10
)

// Playback pulls PCM from a DataProducer into a hardware output stream.
//
// Each time the device has played another notification period, the worker
// asks the producer to fill the shared buffer with as many frames as were
// played and writes them to the device. A producer status other than
// StatusOK or StatusNoData is fatal: the stream is released and the engine
// ends in StateTerminated.
type Playback struct {
	lifecycle

	deviceID string
	producer DataProducer
	caps     hal.Capabilities
	stream   hal.PlaybackStream
	buffer   *SharedBuffer

	sampleRate   int
	channels     int
	minBuffer    int
	periodFrames int
	silence      []byte

	lastHead      atomic.Int64
	terminateOnce sync.Once
}

// NewPlayback opens an output stream on backend and allocates the shared
// buffer. It fails with ErrDeviceOpen when the device cannot be opened.
func NewPlayback(backend hal.Backend, producer DataProducer, deviceID string, opts Options) (*Playback, error) {
	p := &Playback{
		deviceID: deviceID,
		producer: producer,
		caps:     backend.Capabilities(),
		channels: opts.Channels,
	}
	p.init(hal.Output, "playback", opts.recorder())

	if p.channels == 0 {
		p.channels = defaultPlaybackChannels
	}
	p.sampleRate = opts.SampleRate
	if p.sampleRate == 0 {
		rate, err := backend.NativeOutputSampleRate()
		if err != nil {
			return nil, deviceOpenError("playback", err, 0, p.channels)
		}
		p.sampleRate = rate
	}

	hwMin, err := backend.MinBufferSize(hal.Output, p.sampleRate, p.channels)
	if err != nil {
		return nil, deviceOpenError("playback", err, p.sampleRate, p.channels)
	}
	p.minBuffer = adjustedMinBuffer(p.sampleRate, p.channels, hwMin)

	p.stream, err = backend.OpenPlayback(hal.StreamConfig{
		SampleRate:      p.sampleRate,
		Channels:        p.channels,
		BufferSizeBytes: p.minBuffer,
		Device:          opts.Device,
	})
	if err != nil {
		return nil, deviceOpenError("playback", err, p.sampleRate, p.channels)
	}

	p.buffer = NewSharedBuffer(playbackBufferSize(p.sampleRate, p.channels, p.minBuffer), p.channels)
	p.silence = make([]byte, p.stream.BufferSizeInFrames()*p.channels*hal.BytesPerSample)

	periodMs := opts.PeriodMs
	if periodMs <= 0 {
		periodMs = defaultPlaybackPeriodMs
	}
	p.periodFrames = max(periodFrames(p.sampleRate, periodMs), 1)

	p.openTap(opts.TapDir, "playback", p.sampleRate, p.channels)

	p.log.Info("playback stream opened",
		logger.String("device_id", deviceID),
		logger.Int("sample_rate", p.sampleRate),
		logger.Int("channels", p.channels),
		logger.Int("hw_min_buffer", hwMin),
		logger.Int("device_buffer", p.minBuffer),
		logger.Int("shared_buffer", p.buffer.Len()),
		logger.Int("period_frames", p.periodFrames))
	return p, nil
}

func deviceOpenError(component string, err error, sampleRate, channels int) error {
	dir := "output"
	if component == "record" {
		dir = "input"
	}
	return errors.New(fmt.Errorf("%w: %w", ErrDeviceOpen, err)).
		Component("soundbackend." + component).
		Category(errors.CategoryDeviceOpen).
		StreamContext(dir, sampleRate, channels).
		Build()
}

// SampleRate returns the stream rate in Hz.
func (p *Playback) SampleRate() int { return p.sampleRate }

// Channels returns the stream channel count.
func (p *Playback) Channels() int { return p.channels }

// Buffer returns the shared buffer the producer fills.
func (p *Playback) Buffer() *SharedBuffer { return p.buffer }

// MinBufferBytes returns the adjusted device buffer size.
func (p *Playback) MinBufferBytes() int { return p.minBuffer }

// SetState applies a lifecycle action. Actions on a terminated engine are
// ignored. Start returns an error when the device refuses to play or ctx is
// cancelled while waiting for it.
func (p *Playback) SetState(ctx context.Context, action Action) error {
	if action == ActionStart {
		var done func()
		ctx, done = p.beginStart(ctx)
		defer done()
	} else {
		p.interruptStart()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateTerminated {
		p.log.Debug("ignoring action on terminated playback", logger.String("action", action.String()))
		return nil
	}

	switch action {
	case ActionStart:
		return p.start(ctx)
	case ActionPause:
		p.pause()
	case ActionStop:
		p.stop()
	case ActionShutdown:
		p.shutdown()
	default:
		return errors.Newf("unknown playback action %d", int(action)).
			Component("soundbackend.playback").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func (p *Playback) start(ctx context.Context) error {
	if p.State() == StateRunning && !p.paused.Load() {
		return nil
	}

	p.setState(StateStarting)
	p.paused.Store(false)
	p.ensureWorker(p.stream.Notifications(), p.caps.GracefulQuit, p.onPeriod)

	p.lastHead.Store(p.stream.PlaybackHeadPosition())
	if err := p.stream.SetPositionNotificationPeriod(p.periodFrames); err != nil {
		return p.failStart(err)
	}
	if _, err := p.stream.Write(p.silence); err != nil {
		return p.failStart(err)
	}

	retries, err := retryIllegalState(ctx, p.stream.Play, func(err error) {
		p.rec.RecordStartRetry(p.direction.String())
		p.log.Warn("playback start refused, retrying",
			logger.Duration("retry_in", startRetryInterval),
			logger.Error(err))
	})
	if err != nil {
		return p.failStart(err)
	}

	p.setState(StateRunning)
	p.log.Info("playback started",
		logger.Int("retries", retries),
		logger.Int("prefill_bytes", len(p.silence)))
	return nil
}

func (p *Playback) failStart(err error) error {
	p.paused.Store(true)
	p.setState(StateStopped)

	category := errors.CategoryAudio
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component("soundbackend.playback").
		Category(category).
		StreamContext("output", p.sampleRate, p.channels).
		Build()
}

// halt stops the hardware stream and disarms notifications.
func (p *Playback) halt() {
	if p.stream.PlayState() != hal.PlayStatePlaying {
		return
	}
	if err := p.stream.Stop(); err != nil {
		p.log.Warn("stopping playback stream failed", logger.Error(err))
	}
	_ = p.stream.SetPositionNotificationPeriod(0)
	p.lastHead.Store(0)
}

func (p *Playback) pause() {
	if !p.paused.CompareAndSwap(false, true) {
		return
	}
	p.halt()
	p.transition(StatePaused, StateRunning, StateStarting)
	p.log.Debug("playback paused")
}

func (p *Playback) stop() {
	p.paused.Store(true)
	p.halt()
	p.stopWorker()
	p.setState(StateStopped)
	p.log.Debug("playback stopped")
}

func (p *Playback) shutdown() {
	p.setState(StateShuttingDown)
	p.stop()
	if err := hal.ReleasePlayback(p.stream, p.caps.Release); err != nil {
		p.log.Warn("releasing playback stream failed", logger.Error(err))
	}
	p.closeTap()
	p.setState(StateTerminated)
	p.log.Info("playback shut down", logger.Int64("frames", p.frames.Load()))
}

// onPeriod runs on the worker for every notification.
func (p *Playback) onPeriod() bool {
	if p.paused.Load() {
		return true
	}

	head := p.stream.PlaybackHeadPosition()
	played := head - p.lastHead.Load()
	if played == 0 {
		return true
	}
	if played < 0 {
		// the stream was restarted underneath us
		p.lastHead.Store(head)
		return true
	}

	// The frame request is capped by half the byte capacity, not by frames.
	frames := int(min(int64(p.buffer.Len()/2), played))

	started := time.Now()
	status := p.producer.AcquireData(p.deviceID, frames)
	switch status {
	case StatusOK, StatusNoData:
		p.write(frames, status)
		p.lastHead.Store(head)
		p.rec.RecordCallbackDuration(p.direction.String(), time.Since(started).Seconds())
		return true
	default:
		p.terminate(status, frames, head)
		return false
	}
}

func (p *Playback) write(frames, status int) {
	data := p.buffer.span(frames)
	if status == StatusNoData {
		clear(data)
		p.rec.RecordStatus(p.direction.String(), metrics.StatusNoData)
	} else {
		p.rec.RecordStatus(p.direction.String(), metrics.StatusOK)
	}

	n, err := p.stream.Write(data)
	if err != nil {
		if errors.Is(err, hal.ErrReleased) {
			p.log.Debug("playback write after release", logger.Int("bytes", len(data)))
		} else {
			p.log.Error("playback write failed", logger.Int("bytes", len(data)), logger.Error(err))
		}
	}
	written := n / (p.channels * hal.BytesPerSample)
	p.frames.Add(int64(written))
	p.rec.RecordFrames(p.direction.String(), written)
	p.writeTap(data[:n])
}

// terminate releases the stream after a fatal producer status. It runs on
// the worker and takes no locks, so a concurrent SetState cannot deadlock
// with it.
func (p *Playback) terminate(status, frames int, head int64) {
	p.terminateOnce.Do(func() {
		p.paused.Store(true)
		p.rec.RecordStatus(p.direction.String(), metrics.StatusError)

		err := errors.Newf("voice engine producer returned status %d", status).
			Component("soundbackend.playback").
			Category(errors.CategoryProducer).
			Priority(errors.PriorityHigh).
			Context("status", status).
			Context("frames", frames).
			Context("device_id", p.deviceID).
			Build()
		p.fatal.Store(err)
		p.log.Error("playback producer failed, terminating stream",
			logger.Int("status", status),
			logger.Error(err))

		if status == StatusBufferTooSmall {
			p.log.Debug("requested more frames than the shared buffer holds",
				logger.Int("frames", frames),
				logger.Int64("last_head", p.lastHead.Load()),
				logger.Int64("head", head),
				logger.Int("buffer_capacity", p.buffer.Len()))
		}

		if err := hal.ReleasePlayback(p.stream, p.caps.Release); err != nil {
			p.log.Warn("releasing playback stream failed", logger.Error(err))
		}
		p.closeTap()
		p.setState(StateTerminated)
		p.rec.RecordTermination(p.direction.String())
	})
}

// SetPreferredDevice asks the stream to route to dev, nil for the default
// route. It reports whether the request was accepted.
func (p *Playback) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	if !p.caps.PreferredDevice || p.State() == StateTerminated {
		return false
	}
	ok := p.stream.SetPreferredDevice(dev)
	p.log.Debug("playback preferred device", logger.Any("device", dev), logger.Bool("accepted", ok))
	return ok
}

// RoutedDevice returns the endpoint the stream currently plays to, nil when
// unknown.
func (p *Playback) RoutedDevice() *hal.DeviceInfo {
	if p.State() == StateTerminated {
		return nil
	}
	return p.stream.RoutedDevice()
}

// Err returns the fatal producer error once the engine has terminated
// because of one.
func (p *Playback) Err() error {
	if err := p.fatal.Load(); err != nil {
		return err
	}
	return nil
}

// Status returns a snapshot of the engine.
func (p *Playback) Status() Status {
	s := Status{
		ID:           p.id,
		Direction:    p.direction.String(),
		State:        p.State(),
		Paused:       p.Paused(),
		Functional:   true,
		SampleRate:   p.sampleRate,
		Channels:     p.channels,
		BufferBytes:  p.buffer.Len(),
		DeviceBuffer: p.minBuffer,
		PeriodFrames: p.periodFrames,
		Frames:       p.frames.Load(),
		Device:       p.RoutedDevice(),
	}
	if err := p.fatal.Load(); err != nil {
		s.Error = err.Error()
	}
	return s
}
