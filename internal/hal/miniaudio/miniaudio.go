// Package miniaudio implements hal on top of the miniaudio library via malgo.
//
// Every stream owns one malgo device. The device data callback moves PCM16
// between the device and the stream FIFO and advances the frame position;
// malgo converts to and from the hardware format.
package miniaudio

import (
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

const (
	defaultPeriodMs = 10
	defaultPeriods  = 3
	minSampleRate   = 8000
	maxSampleRate   = 192000
	maxChannels     = 2
	fallbackRate    = 48000
)

// Config configures the miniaudio backend.
type Config struct {
	// Backends lists malgo backends by name ("alsa", "pulseaudio", ...).
	// Empty selects the platform default.
	Backends []string
	PeriodMs int
	Periods  int
	// Release overrides the teardown strategy, nil keeps the default.
	Release *hal.ReleaseStrategy
}

// Backend is a hal.Backend driving real sound hardware.
type Backend struct {
	cfg  Config
	ctx  *malgo.AllocatedContext
	caps hal.Capabilities
	log  logger.Logger

	rateOnce   sync.Once
	nativeRate int
	rateErr    error

	mu      sync.Mutex
	streams []releaser
	closed  bool
}

type releaser interface {
	Release() error
}

// New initializes a malgo context for the configured backends.
func New(cfg Config) (*Backend, error) {
	if cfg.PeriodMs <= 0 {
		cfg.PeriodMs = defaultPeriodMs
	}
	if cfg.Periods <= 0 {
		cfg.Periods = defaultPeriods
	}

	backends, err := parseBackends(cfg.Backends)
	if err != nil {
		return nil, err
	}

	log := logger.Global().Module("hal").Module("miniaudio")
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("hal.miniaudio").
			Category(errors.CategorySystem).
			Context("operation", "init_context").
			Build()
	}

	caps := hal.Capabilities{
		NonBlockingRead: true,
		GracefulQuit:    true,
		PreferredDevice: true,
		Release:         hal.ReleaseStopFlush,
	}
	if cfg.Release != nil {
		caps.Release = *cfg.Release
	}

	return &Backend{cfg: cfg, ctx: ctx, caps: caps, log: log}, nil
}

// Name implements hal.Backend.
func (b *Backend) Name() string { return "miniaudio" }

// Capabilities implements hal.Backend.
func (b *Backend) Capabilities() hal.Capabilities { return b.caps }

// NativeOutputSampleRate probes the default playback device once by opening
// it without a requested rate.
func (b *Backend) NativeOutputSampleRate() (int, error) {
	b.rateOnce.Do(func() {
		devCfg := malgo.DefaultDeviceConfig(malgo.Playback)
		devCfg.Playback.Format = malgo.FormatS16
		devCfg.Playback.Channels = maxChannels
		devCfg.SampleRate = 0
		devCfg.Alsa.NoMMap = 1

		device, err := malgo.InitDevice(b.ctx.Context, devCfg, malgo.DeviceCallbacks{})
		if err != nil {
			b.nativeRate = fallbackRate
			b.rateErr = errors.New(err).
				Component("hal.miniaudio").
				Category(errors.CategoryDeviceOpen).
				Context("operation", "probe_native_rate").
				Build()
			return
		}
		defer device.Uninit()
		b.nativeRate = int(device.SampleRate())
		if b.nativeRate == 0 {
			b.nativeRate = fallbackRate
		}
	})
	return b.nativeRate, b.rateErr
}

// MinBufferSize implements hal.Backend. miniaudio reports no minimum, so the
// configured period geometry is used.
func (b *Backend) MinBufferSize(_ hal.Direction, sampleRate, channels int) (int, error) {
	if sampleRate < minSampleRate || sampleRate > maxSampleRate || channels < 1 || channels > maxChannels {
		return 0, hal.ErrBadValue
	}
	periodFrames := sampleRate * b.cfg.PeriodMs / 1000
	return periodFrames * b.cfg.Periods * channels * hal.BytesPerSample, nil
}

// OpenPlayback implements hal.Backend.
func (b *Backend) OpenPlayback(cfg hal.StreamConfig) (hal.PlaybackStream, error) {
	if err := b.checkOpen(cfg); err != nil {
		return nil, err
	}
	s := newPlaybackStream(b, cfg)
	if err := s.initDevice(cfg.Device); err != nil {
		return nil, err
	}
	b.track(s)
	return s, nil
}

// OpenCapture implements hal.Backend.
func (b *Backend) OpenCapture(cfg hal.StreamConfig) (hal.CaptureStream, error) {
	if err := b.checkOpen(cfg); err != nil {
		return nil, err
	}
	s := newCaptureStream(b, cfg)
	if err := s.initDevice(cfg.Device); err != nil {
		return nil, err
	}
	b.track(s)
	return s, nil
}

func (b *Backend) checkOpen(cfg hal.StreamConfig) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return hal.ErrReleased
	}
	if cfg.BufferSizeBytes <= 0 {
		return hal.ErrBadValue
	}
	_, err := b.MinBufferSize(hal.Output, cfg.SampleRate, cfg.Channels)
	return err
}

func (b *Backend) track(s releaser) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = append(b.streams, s)
}

// Devices implements hal.Backend.
func (b *Backend) Devices(dir hal.Direction) ([]hal.DeviceInfo, error) {
	_, devices, err := b.enumerate(dir)
	return devices, err
}

// enumerate returns malgo's device list next to its hal view, index aligned.
func (b *Backend) enumerate(dir hal.Direction) ([]malgo.DeviceInfo, []hal.DeviceInfo, error) {
	infos, err := b.ctx.Devices(deviceType(dir))
	if err != nil {
		return nil, nil, errors.New(err).
			Component("hal.miniaudio").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Context("direction", dir.String()).
			Build()
	}

	raw := make([]malgo.DeviceInfo, 0, len(infos))
	devices := make([]hal.DeviceInfo, 0, len(infos))
	for i := range infos {
		if isDiscardDevice(infos[i].Name()) {
			continue
		}
		raw = append(raw, infos[i])
		devices = append(devices, toDeviceInfo(&infos[i], dir))
	}
	return raw, devices, nil
}

// resolve finds the malgo device for dev; nil selects the system default.
func (b *Backend) resolve(dir hal.Direction, dev *hal.DeviceInfo) (*malgo.DeviceInfo, *hal.DeviceInfo, error) {
	raw, devices, err := b.enumerate(dir)
	if err != nil {
		return nil, nil, err
	}

	want := ""
	if dev != nil {
		want = dev.ID
	}
	i, ok := matchDevice(devices, want)
	if !ok {
		return nil, nil, errors.Newf("no matching %s device", dir).
			Component("hal.miniaudio").
			Category(errors.CategoryNotFound).
			Context("device", want).
			Context("available_devices", len(devices)).
			Build()
	}
	return &raw[i], &devices[i], nil
}

// Close releases remaining streams and the malgo context.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	streams := b.streams
	b.streams = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range streams {
		errs = append(errs, s.Release())
	}
	errs = append(errs, b.ctx.Uninit())
	b.ctx.Free()
	return errors.Join(errs...)
}
