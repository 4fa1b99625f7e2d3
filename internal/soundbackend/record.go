package soundbackend

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

// Capture formats tried in order of preference. The native output rate is
// moved to the front so both directions can run at the same rate.
var (
	captureRates       = []int{48000, 44100, 32000, 22050, 16000, 8000, 192000, 96000, 88200}
	captureChannels    = []int{1, 2}
	captureMultipliers = []int{2, 1}
)

// Format reported when no capture stream could be opened.
const (
	fallbackCaptureRate     = 48000
	fallbackCaptureChannels = 1
	fallbackCaptureBuffer   = 2
)

// readWarnInterval limits how often failed capture reads are logged.
const readWarnInterval = time.Second

// Record pushes PCM from a hardware input stream to a DataConsumer.
//
// Mono is preferred over stereo because some devices route a second
// microphone into the right channel. When no format works the engine is
// created without a stream: it reports 48000 Hz mono with a 2 byte buffer
// and ignores every lifecycle action.
type Record struct {
	lifecycle

	deviceID string
	consumer DataConsumer
	caps     hal.Capabilities
	stream   hal.CaptureStream
	buffer   *SharedBuffer

	sampleRate   int
	channels     int
	minBuffer    int
	periodFrames int
	nonBlocking  bool

	warnLimiter *rate.Limiter
	suppressed  atomic.Int64
}

// NewRecord probes backend for a working capture format and allocates the
// shared buffer. It never fails; see Functional.
func NewRecord(backend hal.Backend, consumer DataConsumer, deviceID string, opts Options) *Record {
	r := &Record{
		deviceID:    deviceID,
		consumer:    consumer,
		caps:        backend.Capabilities(),
		warnLimiter: rate.NewLimiter(rate.Every(readWarnInterval), 1),
	}
	r.init(hal.Input, "record", opts.recorder())

	native, err := backend.NativeOutputSampleRate()
	if err != nil {
		r.log.Warn("native output rate unknown, using default rate order", logger.Error(err))
		native = 0
	}

	if !r.probe(backend, preferRate(captureRates, native), opts.Device) {
		r.sampleRate = fallbackCaptureRate
		r.channels = fallbackCaptureChannels
		r.buffer = NewSharedBuffer(fallbackCaptureBuffer, r.channels)
		r.log.Error("no capture format could be opened, recording disabled",
			logger.String("device_id", deviceID))
		return r
	}

	r.buffer = NewSharedBuffer(r.stream.BufferSizeInFrames()*r.channels*hal.BytesPerSample, r.channels)
	r.nonBlocking = r.caps.NonBlockingRead && !opts.BlockingCapture
	r.periodFrames = max(recordPeriodFrames(r.sampleRate, r.channels, r.minBuffer, r.nonBlocking), 1)
	r.openTap(opts.TapDir, "capture", r.sampleRate, r.channels)

	r.log.Info("capture stream opened",
		logger.String("device_id", deviceID),
		logger.Int("sample_rate", r.sampleRate),
		logger.Int("channels", r.channels),
		logger.Int("hw_min_buffer", r.minBuffer),
		logger.Int("shared_buffer", r.buffer.Len()),
		logger.Int("period_frames", r.periodFrames),
		logger.Bool("nonblocking", r.nonBlocking))
	return r
}

// preferRate returns rates with native moved to the front, or prepended when
// it is not in the list.
func preferRate(rates []int, native int) []int {
	out := make([]int, 0, len(rates)+1)
	if native > 0 {
		out = append(out, native)
	}
	for _, r := range rates {
		if r != native {
			out = append(out, r)
		}
	}
	return out
}

func (r *Record) probe(backend hal.Backend, rates []int, device *hal.DeviceInfo) bool {
	for _, channels := range captureChannels {
		for _, sampleRate := range rates {
			minBuffer, err := backend.MinBufferSize(hal.Input, sampleRate, channels)
			if err != nil {
				continue
			}
			for _, mult := range captureMultipliers {
				stream, err := backend.OpenCapture(hal.StreamConfig{
					SampleRate:      sampleRate,
					Channels:        channels,
					BufferSizeBytes: mult * minBuffer,
					Device:          device,
				})
				if err != nil {
					r.log.Debug("capture format rejected",
						logger.Int("sample_rate", sampleRate),
						logger.Int("channels", channels),
						logger.Int("buffer", mult*minBuffer),
						logger.Error(err))
					continue
				}
				r.stream = stream
				r.sampleRate = sampleRate
				r.channels = channels
				r.minBuffer = minBuffer
				return true
			}
		}
	}
	return false
}

// Functional reports whether a capture stream was opened.
func (r *Record) Functional() bool { return r.stream != nil }

// SampleRate returns the capture rate in Hz.
func (r *Record) SampleRate() int { return r.sampleRate }

// Channels returns the capture channel count.
func (r *Record) Channels() int { return r.channels }

// Buffer returns the shared buffer the consumer reads.
func (r *Record) Buffer() *SharedBuffer { return r.buffer }

// SetState applies a lifecycle action. Without a capture stream every action
// is a no-op.
func (r *Record) SetState(ctx context.Context, action Action) error {
	if !r.Functional() {
		r.log.Warn("ignoring action, no capture stream", logger.String("action", action.String()))
		return nil
	}
	if action == ActionStart {
		var done func()
		ctx, done = r.beginStart(ctx)
		defer done()
	} else {
		r.interruptStart()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() == StateTerminated {
		r.log.Debug("ignoring action on terminated record", logger.String("action", action.String()))
		return nil
	}

	switch action {
	case ActionStart:
		return r.start(ctx)
	case ActionPause:
		r.pause()
	case ActionStop:
		r.stop()
	case ActionShutdown:
		r.shutdown()
	default:
		return errors.Newf("unknown record action %d", int(action)).
			Component("soundbackend.record").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func (r *Record) start(ctx context.Context) error {
	if r.State() == StateRunning && !r.paused.Load() {
		return nil
	}

	r.setState(StateStarting)
	r.paused.Store(false)
	r.ensureWorker(r.stream.Notifications(), r.caps.GracefulQuit, r.onPeriod)

	if err := r.stream.SetPositionNotificationPeriod(r.periodFrames); err != nil {
		return r.failStart(err)
	}
	if _, err := retryIllegalState(ctx, r.stream.StartRecording, func(err error) {
		r.rec.RecordStartRetry(r.direction.String())
		r.log.Warn("capture start refused, retrying", logger.Error(err))
	}); err != nil {
		return r.failStart(err)
	}

	r.setState(StateRunning)
	r.log.Info("capture started",
		logger.Int("sample_rate", r.sampleRate),
		logger.Int("channels", r.channels),
		logger.Int("period_frames", r.periodFrames))
	return nil
}

func (r *Record) failStart(err error) error {
	r.paused.Store(true)
	r.setState(StateStopped)

	category := errors.CategoryAudioSource
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component("soundbackend.record").
		Category(category).
		StreamContext("input", r.sampleRate, r.channels).
		Build()
}

func (r *Record) halt() {
	if r.stream.RecordingState() != hal.RecordStateRecording {
		return
	}
	if err := r.stream.Stop(); err != nil {
		r.log.Warn("stopping capture stream failed", logger.Error(err))
	}
	_ = r.stream.SetPositionNotificationPeriod(0)
}

func (r *Record) pause() {
	if !r.paused.CompareAndSwap(false, true) {
		return
	}
	r.halt()
	r.transition(StatePaused, StateRunning, StateStarting)
	r.log.Debug("capture paused")
}

func (r *Record) stop() {
	r.paused.Store(true)
	r.halt()
	r.stopWorker()
	r.setState(StateStopped)
	r.log.Debug("capture stopped")
}

func (r *Record) shutdown() {
	r.setState(StateShuttingDown)
	r.stop()
	if err := hal.ReleaseCapture(r.stream, r.caps.Release); err != nil {
		r.log.Warn("releasing capture stream failed", logger.Error(err))
	}
	r.closeTap()
	r.setState(StateTerminated)
	r.log.Info("capture shut down", logger.Int64("frames", r.frames.Load()))
}

// onPeriod runs on the worker for every notification. Read failures are
// logged and the next period tries again.
func (r *Record) onPeriod() bool {
	if r.paused.Load() || r.stream.RecordingState() != hal.RecordStateRecording {
		return true
	}

	started := time.Now()
	var (
		n   int
		err error
	)
	if r.nonBlocking {
		n, err = r.stream.Read(r.buffer.Bytes(), hal.ReadNonBlocking)
	} else {
		n, err = r.stream.Read(r.buffer.span(r.periodFrames), hal.ReadBlocking)
	}
	if err != nil {
		r.readFailed(err)
		return true
	}
	if n <= 0 || r.paused.Load() {
		return true
	}

	frames := n / (hal.BytesPerSample * r.channels)
	r.writeTap(r.buffer.Bytes()[:n])
	status := r.consumer.ProcessData(r.deviceID, frames)
	if status != StatusOK {
		r.log.Debug("capture consumer returned status", logger.Int("status", status), logger.Int("frames", frames))
		r.rec.RecordStatus(r.direction.String(), metrics.StatusError)
	} else {
		r.rec.RecordStatus(r.direction.String(), metrics.StatusOK)
	}

	r.frames.Add(int64(frames))
	r.rec.RecordFrames(r.direction.String(), frames)
	r.rec.RecordCallbackDuration(r.direction.String(), time.Since(started).Seconds())
	return true
}

func (r *Record) readFailed(err error) {
	r.rec.RecordReadError(r.direction.String())
	if !r.warnLimiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	r.log.Warn("capture read failed",
		logger.Int64("suppressed", r.suppressed.Swap(0)),
		logger.Error(err))
}

// SetPreferredDevice asks the stream to record from dev, nil for the default
// route. It reports whether the request was accepted.
func (r *Record) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	if !r.Functional() || !r.caps.PreferredDevice || r.State() == StateTerminated {
		return false
	}
	ok := r.stream.SetPreferredDevice(dev)
	r.log.Debug("capture preferred device", logger.Any("device", dev), logger.Bool("accepted", ok))
	return ok
}

// RoutedDevice returns the endpoint the stream currently records from, nil
// when unknown.
func (r *Record) RoutedDevice() *hal.DeviceInfo {
	if !r.Functional() || r.State() == StateTerminated {
		return nil
	}
	return r.stream.RoutedDevice()
}

// Status returns a snapshot of the engine.
func (r *Record) Status() Status {
	s := Status{
		ID:           r.id,
		Direction:    r.direction.String(),
		State:        r.State(),
		Paused:       r.Paused(),
		Functional:   r.Functional(),
		SampleRate:   r.sampleRate,
		Channels:     r.channels,
		BufferBytes:  r.buffer.Len(),
		PeriodFrames: r.periodFrames,
		Frames:       r.frames.Load(),
		Device:       r.RoutedDevice(),
	}
	if r.stream != nil {
		s.DeviceBuffer = r.stream.Config().BufferSizeBytes
	}
	return s
}
