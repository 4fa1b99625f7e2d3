// Package virtual implements a software sound card for hal.
//
// Streams keep real FIFOs and position counters, but the device clock is
// either driven by a goroutine (ClockRealtime) or stepped explicitly with Tick
// (ClockManual). Capture plays a WAV clip in a loop, playback can be recorded
// to a WAV file. Used for hardware-free runs and for tests.
package virtual

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// ClockMode selects what advances stream positions.
type ClockMode int

const (
	ClockManual ClockMode = iota
	ClockRealtime
)

const (
	minSampleRate       = 8000
	maxSampleRate       = 192000
	defaultNativeRate   = 48000
	defaultTickMs       = 5
	defaultMaxChannels  = 2
	defaultMinBufferMs  = 10
	illegalStateForever = -1
)

// Config describes the simulated hardware.
type Config struct {
	NativeRate int
	// MinBufferBytes is reported by MinBufferSize for every supported
	// combination. Zero derives 10ms worth of bytes.
	MinBufferBytes int
	// SupportedRates restricts accepted sample rates. Empty accepts 8-192 kHz.
	SupportedRates []int
	MaxChannels    int

	Clock  ClockMode
	TickMs int

	// InputPath is a WAV file looped into capture streams. Empty captures silence.
	InputPath string
	// OutputPath receives everything played. Empty discards playback.
	OutputPath string

	// IllegalStateStarts makes the first N Play calls fail with
	// hal.ErrIllegalState. Negative fails forever.
	IllegalStateStarts int
	// RejectOpen vetoes stream creation, e.g. to model driver quirks.
	RejectOpen func(dir hal.Direction, cfg hal.StreamConfig) bool

	Capabilities hal.Capabilities
	Devices      []hal.DeviceInfo
}

// DefaultConfig returns a 48 kHz stereo card with realtime clock.
func DefaultConfig() Config {
	return Config{
		NativeRate:  defaultNativeRate,
		MaxChannels: defaultMaxChannels,
		Clock:       ClockRealtime,
		TickMs:      defaultTickMs,
		Capabilities: hal.Capabilities{
			NonBlockingRead: true,
			GracefulQuit:    true,
			PreferredDevice: true,
			Release:         hal.ReleaseStopFlush,
		},
		Devices: DefaultDevices(),
	}
}

// DefaultDevices is the endpoint list of a phone-like card.
func DefaultDevices() []hal.DeviceInfo {
	return []hal.DeviceInfo{
		hal.NewDeviceInfo("earpiece", "Earpiece", hal.DeviceBuiltinEarpiece, hal.Output, true),
		hal.NewDeviceInfo("speaker", "Speaker", hal.DeviceBuiltinSpeaker, hal.Output, false),
		hal.NewDeviceInfo("telephony-out", "Telephony", hal.DeviceTelephony, hal.Output, false),
		hal.NewDeviceInfo("mic", "Built-in Microphone", hal.DeviceBuiltinMic, hal.Input, true),
		hal.NewDeviceInfo("telephony-in", "Telephony", hal.DeviceTelephony, hal.Input, false),
	}
}

// Backend is the virtual sound card.
type Backend struct {
	cfg    Config
	source *audiotap.PCM
	log    logger.Logger

	illegalStarts atomic.Int32

	mu        sync.Mutex
	devices   []hal.DeviceInfo
	playbacks []*PlaybackStream
	captures  []*CaptureStream
	closed    bool
}

// New creates a virtual backend.
func New(cfg Config) (*Backend, error) {
	if cfg.NativeRate == 0 {
		cfg.NativeRate = defaultNativeRate
	}
	if cfg.MaxChannels == 0 {
		cfg.MaxChannels = defaultMaxChannels
	}
	if cfg.TickMs <= 0 {
		cfg.TickMs = defaultTickMs
	}

	b := &Backend{
		cfg:     cfg,
		log:     logger.Global().Module("hal").Module("virtual"),
		devices: slices.Clone(cfg.Devices),
	}

	starts := cfg.IllegalStateStarts
	if starts < 0 {
		starts = illegalStateForever
	}
	b.illegalStarts.Store(int32(starts))

	if cfg.InputPath != "" {
		clip, err := audiotap.Load(cfg.InputPath)
		if err != nil {
			return nil, errors.New(err).
				Component("hal.virtual").
				Category(errors.CategoryConfiguration).
				Context("input_path", cfg.InputPath).
				Build()
		}
		b.source = clip
	}

	return b, nil
}

// Name implements hal.Backend.
func (b *Backend) Name() string { return "virtual" }

// Capabilities implements hal.Backend.
func (b *Backend) Capabilities() hal.Capabilities { return b.cfg.Capabilities }

// NativeOutputSampleRate implements hal.Backend.
func (b *Backend) NativeOutputSampleRate() (int, error) {
	return b.cfg.NativeRate, nil
}

// MinBufferSize implements hal.Backend.
func (b *Backend) MinBufferSize(_ hal.Direction, sampleRate, channels int) (int, error) {
	if !b.supports(sampleRate, channels) {
		return 0, hal.ErrBadValue
	}
	if b.cfg.MinBufferBytes > 0 {
		return b.cfg.MinBufferBytes, nil
	}
	return sampleRate * defaultMinBufferMs / 1000 * channels * hal.BytesPerSample, nil
}

func (b *Backend) supports(sampleRate, channels int) bool {
	if channels < 1 || channels > b.cfg.MaxChannels {
		return false
	}
	if len(b.cfg.SupportedRates) > 0 {
		return slices.Contains(b.cfg.SupportedRates, sampleRate)
	}
	return sampleRate >= minSampleRate && sampleRate <= maxSampleRate
}

func (b *Backend) validate(dir hal.Direction, cfg hal.StreamConfig) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	switch {
	case closed:
		return hal.ErrReleased
	case !b.supports(cfg.SampleRate, cfg.Channels), cfg.BufferSizeBytes <= 0:
		return hal.ErrBadValue
	case b.cfg.RejectOpen != nil && b.cfg.RejectOpen(dir, cfg):
		return hal.ErrIllegalState
	}
	return nil
}

// OpenPlayback implements hal.Backend.
func (b *Backend) OpenPlayback(cfg hal.StreamConfig) (hal.PlaybackStream, error) {
	if err := b.validate(hal.Output, cfg); err != nil {
		return nil, err
	}

	s := newPlaybackStream(b, cfg)
	if b.cfg.OutputPath != "" {
		sink, err := audiotap.Create(b.cfg.OutputPath, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
		s.sink = sink
	}

	b.mu.Lock()
	b.playbacks = append(b.playbacks, s)
	b.mu.Unlock()

	b.log.Debug("playback stream opened",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("channels", cfg.Channels),
		logger.Int("buffer_bytes", cfg.BufferSizeBytes))
	return s, nil
}

// OpenCapture implements hal.Backend.
func (b *Backend) OpenCapture(cfg hal.StreamConfig) (hal.CaptureStream, error) {
	if err := b.validate(hal.Input, cfg); err != nil {
		return nil, err
	}

	s := newCaptureStream(b, cfg, b.source)

	b.mu.Lock()
	b.captures = append(b.captures, s)
	b.mu.Unlock()

	b.log.Debug("capture stream opened",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("channels", cfg.Channels),
		logger.Int("buffer_bytes", cfg.BufferSizeBytes))
	return s, nil
}

// Devices implements hal.Backend.
func (b *Backend) Devices(dir hal.Direction) ([]hal.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]hal.DeviceInfo, 0, len(b.devices))
	for _, d := range b.devices {
		if d.Direction == dir {
			out = append(out, d)
		}
	}
	return out, nil
}

// SetDevices replaces the endpoint list, simulating hot-plug.
func (b *Backend) SetDevices(devices []hal.DeviceInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = slices.Clone(devices)
}

// Playbacks returns every playback stream opened so far.
func (b *Backend) Playbacks() []*PlaybackStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.playbacks)
}

// Captures returns every capture stream opened so far.
func (b *Backend) Captures() []*CaptureStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.captures)
}

// Close releases all streams still open.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	playbacks := slices.Clone(b.playbacks)
	captures := slices.Clone(b.captures)
	b.mu.Unlock()

	var errs []error
	for _, s := range playbacks {
		if !s.Released() {
			errs = append(errs, s.Release())
		}
	}
	for _, s := range captures {
		if !s.Released() {
			errs = append(errs, s.Release())
		}
	}
	return errors.Join(errs...)
}

// takeIllegalStart reports whether this Play call should fail.
func (b *Backend) takeIllegalStart() bool {
	for {
		n := b.illegalStarts.Load()
		if n == 0 {
			return false
		}
		if n < 0 {
			return true
		}
		if b.illegalStarts.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (b *Backend) defaultDevice(dir hal.Direction) *hal.DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	var first *hal.DeviceInfo
	for i := range b.devices {
		d := b.devices[i]
		if d.Direction != dir {
			continue
		}
		if d.IsDefault {
			return &d
		}
		if first == nil {
			first = &d
		}
	}
	return first
}
