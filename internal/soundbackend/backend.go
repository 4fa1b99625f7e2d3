// Package soundbackend binds a voice engine to audio hardware.
//
// A Backend owns one Playback and one Record engine. Each engine drives a
// hardware stream from a dedicated worker goroutine and exchanges PCM16 with
// the voice engine through a fixed SharedBuffer registered once under a
// single virtual device id.
package soundbackend

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// Default identity of the registered device.
const (
	DefaultDeviceID    = "Java"
	DefaultDisplayName = "Java"
)

var (
	// ErrAlreadyInitialized is returned by PrepareAudio on an initialized backend.
	ErrAlreadyInitialized = errors.NewStd("soundbackend: already initialized")
	// ErrNotInitialized is returned by operations that need PrepareAudio first.
	ErrNotInitialized = errors.NewStd("soundbackend: not initialized")
)

// Config identifies the registered device and tunes both engines.
type Config struct {
	DeviceID    string
	DisplayName string
	Playback    Options
	Capture     Options
	// PauseOnNoisy pauses playback when the output becomes noisy, e.g. a
	// headset is unplugged.
	PauseOnNoisy bool
}

// Backend is the registration facade. It is safe for concurrent use.
type Backend struct {
	hw  hal.Backend
	cfg Config
	log logger.Logger

	mu          sync.Mutex
	initialized bool
	registrar   DeviceRegistrar
	playback    *Playback
	record      *Record
}

// New creates a facade over hw. Nothing is opened until PrepareAudio.
func New(hw hal.Backend, cfg Config) *Backend {
	if cfg.DeviceID == "" {
		cfg.DeviceID = DefaultDeviceID
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = DefaultDisplayName
	}
	return &Backend{
		hw:  hw,
		cfg: cfg,
		log: logger.Global().Module("soundbackend"),
	}
}

// DeviceID returns the id both engines are registered under.
func (b *Backend) DeviceID() string { return b.cfg.DeviceID }

// PrepareAudio opens both engines and registers them with the voice engine.
// Engines left over from an earlier Unregister are shut down first.
func (b *Backend) PrepareAudio(registrar DeviceRegistrar, producer DataProducer, consumer DataConsumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return errors.New(ErrAlreadyInitialized).
			Component("soundbackend").
			Category(errors.CategoryState).
			Build()
	}
	b.shutdownEnginesLocked(context.Background())

	playback, err := NewPlayback(b.hw, producer, b.cfg.DeviceID, b.cfg.Playback)
	if err != nil {
		return err
	}
	record := NewRecord(b.hw, consumer, b.cfg.DeviceID, b.cfg.Capture)

	reg := Registration{
		DeviceID:           b.cfg.DeviceID,
		DisplayName:        b.cfg.DisplayName,
		CaptureSampleRate:  record.SampleRate(),
		CaptureChannels:    record.Channels(),
		CaptureBuffer:      record.Buffer(),
		PlaybackSampleRate: playback.SampleRate(),
		PlaybackChannels:   playback.Channels(),
		PlaybackBuffer:     playback.Buffer(),
	}
	if status := registrar.RegisterDevice(reg); status != StatusOK {
		_ = playback.SetState(context.Background(), ActionShutdown)
		_ = record.SetState(context.Background(), ActionShutdown)
		return errors.Newf("voice engine rejected device registration with status %d", status).
			Component("soundbackend").
			Category(errors.CategoryAudio).
			Context("device_id", b.cfg.DeviceID).
			Context("status", status).
			Build()
	}

	b.registrar = registrar
	b.playback = playback
	b.record = record
	b.initialized = true

	b.log.Info("audio device registered",
		logger.String("device_id", reg.DeviceID),
		logger.Int("capture_rate", reg.CaptureSampleRate),
		logger.Int("capture_channels", reg.CaptureChannels),
		logger.Int("capture_buffer", reg.CaptureBuffer.Len()),
		logger.Int("playback_rate", reg.PlaybackSampleRate),
		logger.Int("playback_channels", reg.PlaybackChannels),
		logger.Int("playback_buffer", reg.PlaybackBuffer.Len()),
		logger.Bool("capture_functional", record.Functional()))
	return nil
}

// Unregister removes the device from the voice engine. The engines are kept
// until the next PrepareAudio or Close.
func (b *Backend) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return errors.New(ErrNotInitialized).
			Component("soundbackend").
			Category(errors.CategoryState).
			Build()
	}
	status := b.registrar.UnregisterDevice(b.cfg.DeviceID)
	b.initialized = false
	if status != StatusOK {
		b.log.Warn("voice engine returned status on unregister",
			logger.String("device_id", b.cfg.DeviceID),
			logger.Int("status", status))
	}
	b.log.Info("audio device unregistered", logger.String("device_id", b.cfg.DeviceID))
	return nil
}

// Initialized reports whether PrepareAudio succeeded and Unregister has not
// been called since.
func (b *Backend) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Playback returns the output engine, nil before PrepareAudio.
func (b *Backend) Playback() *Playback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playback
}

// Record returns the input engine, nil before PrepareAudio.
func (b *Backend) Record() *Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record
}

func (b *Backend) engines() (*Playback, *Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.playback == nil || b.record == nil {
		return nil, nil, errors.New(ErrNotInitialized).
			Component("soundbackend").
			Category(errors.CategoryState).
			Build()
	}
	return b.playback, b.record, nil
}

// SetState applies action to both engines concurrently.
func (b *Backend) SetState(ctx context.Context, action Action) error {
	playback, record, err := b.engines()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return playback.SetState(ctx, action) })
	g.Go(func() error { return record.SetState(ctx, action) })
	return g.Wait()
}

// SetEngineState applies action to the engine for dir only.
func (b *Backend) SetEngineState(ctx context.Context, dir hal.Direction, action Action) error {
	playback, record, err := b.engines()
	if err != nil {
		return err
	}
	if dir == hal.Input {
		return record.SetState(ctx, action)
	}
	return playback.SetState(ctx, action)
}

// HandleNoisy reacts to the output becoming noisy.
func (b *Backend) HandleNoisy(ctx context.Context) {
	if !b.cfg.PauseOnNoisy {
		return
	}
	playback, _, err := b.engines()
	if err != nil {
		return
	}
	b.log.Info("audio output became noisy, pausing playback")
	if err := playback.SetState(ctx, ActionPause); err != nil {
		b.log.Warn("pausing playback failed", logger.Error(err))
	}
}

// SetPreferredDevice routes the engine for dev's direction to dev.
func (b *Backend) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	playback, record, err := b.engines()
	if err != nil || dev == nil {
		return false
	}
	if dev.Direction == hal.Input {
		return record.SetPreferredDevice(dev)
	}
	return playback.SetPreferredDevice(dev)
}

// BackendStatus is a snapshot of the facade and both engines.
type BackendStatus struct {
	DeviceID    string  `json:"device_id"`
	DisplayName string  `json:"display_name"`
	Backend     string  `json:"backend"`
	Initialized bool    `json:"initialized"`
	Playback    *Status `json:"playback,omitempty"`
	Record      *Status `json:"record,omitempty"`
}

// Status returns a snapshot of the facade.
func (b *Backend) Status() BackendStatus {
	b.mu.Lock()
	playback, record, initialized := b.playback, b.record, b.initialized
	b.mu.Unlock()

	s := BackendStatus{
		DeviceID:    b.cfg.DeviceID,
		DisplayName: b.cfg.DisplayName,
		Backend:     b.hw.Name(),
		Initialized: initialized,
	}
	if playback != nil {
		ps := playback.Status()
		s.Playback = &ps
	}
	if record != nil {
		rs := record.Status()
		s.Record = &rs
	}
	return s
}

// Close unregisters the device if needed and shuts both engines down. The
// hardware backend itself stays open; its owner closes it.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		if status := b.registrar.UnregisterDevice(b.cfg.DeviceID); status != StatusOK {
			b.log.Warn("voice engine returned status on unregister", logger.Int("status", status))
		}
		b.initialized = false
	}
	return b.shutdownEnginesLocked(ctx)
}

func (b *Backend) shutdownEnginesLocked(ctx context.Context) error {
	var g errgroup.Group
	if b.playback != nil {
		playback := b.playback
		g.Go(func() error { return playback.SetState(ctx, ActionShutdown) })
	}
	if b.record != nil {
		record := b.record
		g.Go(func() error { return record.SetState(ctx, ActionShutdown) })
	}
	err := g.Wait()
	b.playback = nil
	b.record = nil
	return err
}
