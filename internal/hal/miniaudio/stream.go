package miniaudio

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// handle is the part of *malgo.Device a stream drives.
type handle interface {
	Start() error
	Stop() error
	Uninit()
}

// openFunc initializes a device on the endpoint matching want.
type openFunc func(want *hal.DeviceInfo, onData malgo.DataProc) (handle, *hal.DeviceInfo, error)

// device is the malgo side shared by playback and capture streams.
type device struct {
	backend *Backend
	cfg     hal.StreamConfig
	dir     hal.Direction
	fifo    *hal.FIFO
	pos     *hal.PositionTracker
	openDev openFunc

	running  atomic.Bool
	released atomic.Bool

	// mu guards dev and routed and serializes every call into the device.
	// It is never taken from the data callback.
	mu     sync.Mutex
	dev    handle
	routed *hal.DeviceInfo
}

func newDevice(b *Backend, cfg hal.StreamConfig, dir hal.Direction) *device {
	d := &device{
		backend: b,
		cfg:     cfg,
		dir:     dir,
		fifo:    hal.NewFIFO(cfg.BufferSizeBytes),
		pos:     hal.NewPositionTracker(),
	}
	d.openDev = d.initMalgo
	return d
}

// initMalgo initializes a malgo device on the endpoint matching want.
func (d *device) initMalgo(want *hal.DeviceInfo, onData malgo.DataProc) (handle, *hal.DeviceInfo, error) {
	raw, info, err := d.backend.resolve(d.dir, want)
	if err != nil {
		return nil, nil, err
	}

	devCfg := malgo.DefaultDeviceConfig(deviceType(d.dir))
	if d.dir == hal.Input {
		devCfg.Capture.Format = malgo.FormatS16
		devCfg.Capture.Channels = uint32(d.cfg.Channels)
		devCfg.Capture.DeviceID = raw.ID.Pointer()
	} else {
		devCfg.Playback.Format = malgo.FormatS16
		devCfg.Playback.Channels = uint32(d.cfg.Channels)
		devCfg.Playback.DeviceID = raw.ID.Pointer()
	}
	devCfg.SampleRate = uint32(d.cfg.SampleRate)
	devCfg.PeriodSizeInMilliseconds = uint32(d.backend.cfg.PeriodMs)
	devCfg.Periods = uint32(d.backend.cfg.Periods)
	devCfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(d.backend.ctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: onData,
		Stop: d.onStop,
	})
	if err != nil {
		return nil, nil, errors.New(err).
			Component("hal.miniaudio").
			Category(errors.CategoryDeviceOpen).
			StreamContext(d.dir.String(), d.cfg.SampleRate, d.cfg.Channels).
			Context("device", info.Name).
			Build()
	}
	return dev, info, nil
}

func (d *device) open(want *hal.DeviceInfo, onData malgo.DataProc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked(want, onData)
}

func (d *device) openLocked(want *hal.DeviceInfo, onData malgo.DataProc) error {
	dev, info, err := d.openDev(want, onData)
	if err != nil {
		return err
	}
	d.dev = dev
	d.routed = info

	d.backend.log.Debug("device opened",
		logger.String("direction", d.dir.String()),
		logger.String("device", info.Name),
		logger.Int("sample_rate", d.cfg.SampleRate),
		logger.Int("channels", d.cfg.Channels))
	return nil
}

// onStop fires when miniaudio stops the device, including unexpected stops
// such as an unplugged endpoint.
func (d *device) onStop() {
	if d.running.Load() && !d.released.Load() {
		d.backend.log.Warn("device stopped unexpectedly",
			logger.String("direction", d.dir.String()))
	}
}

func (d *device) start() error {
	if d.released.Load() {
		return hal.ErrReleased
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked()
}

func (d *device) startLocked() error {
	if d.dev == nil {
		return errors.Newf("no %s device is open", d.dir).
			Component("hal.miniaudio").
			Category(errors.CategoryDeviceOpen).
			StreamContext(d.dir.String(), d.cfg.SampleRate, d.cfg.Channels).
			Build()
	}
	if err := d.dev.Start(); err != nil {
		return errors.New(err).
			Component("hal.miniaudio").
			Category(errors.CategoryAudioSource).
			StreamContext(d.dir.String(), d.cfg.SampleRate, d.cfg.Channels).
			Context("operation", "start_device").
			Build()
	}
	d.running.Store(true)
	return nil
}

func (d *device) stop() error {
	if d.released.Load() {
		return hal.ErrReleased
	}
	d.running.Store(false)
	var err error
	d.mu.Lock()
	if d.dev != nil {
		err = d.dev.Stop()
	}
	d.mu.Unlock()
	d.fifo.Wake()
	d.pos.Reset()
	return err
}

func (d *device) release() error {
	if !d.released.CompareAndSwap(false, true) {
		return nil
	}
	d.running.Store(false)
	d.fifo.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	return nil
}

// reroute reopens the device on a new endpoint, restarting it if it was
// running. When neither the requested nor the default endpoint opens, the
// stream is left without a device until the next successful reroute.
func (d *device) reroute(dev *hal.DeviceInfo, onData malgo.DataProc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released.Load() {
		return false
	}

	wasRunning := d.running.Swap(false)
	if d.dev != nil {
		_ = d.dev.Stop()
		d.dev.Uninit()
		d.dev = nil
	}

	routed := true
	if err := d.openLocked(dev, onData); err != nil {
		d.backend.log.Warn("rerouting failed, reopening default device",
			logger.String("direction", d.dir.String()),
			logger.Error(err))
		if err := d.openLocked(nil, onData); err != nil {
			d.backend.log.Error("reopening default device failed", logger.Error(err))
			d.routed = nil
			return false
		}
		routed = false
	}
	if wasRunning {
		if err := d.startLocked(); err != nil {
			d.backend.log.Warn("restart after reroute failed", logger.Error(err))
		}
	}
	return routed
}

func (d *device) routedDevice() *hal.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.routed == nil {
		return nil
	}
	info := *d.routed
	return &info
}

// PlaybackStream is a malgo-backed hal.PlaybackStream.
type PlaybackStream struct {
	*device
}

func newPlaybackStream(b *Backend, cfg hal.StreamConfig) *PlaybackStream {
	return &PlaybackStream{device: newDevice(b, cfg, hal.Output)}
}

func (s *PlaybackStream) initDevice(want *hal.DeviceInfo) error {
	return s.open(want, s.onData)
}

func (s *PlaybackStream) onData(out, _ []byte, frames uint32) {
	if !s.running.Load() {
		clear(out)
		return
	}
	s.fifo.Drain(out)
	s.pos.Advance(int(frames))
}

// Config implements hal.PlaybackStream.
func (s *PlaybackStream) Config() hal.StreamConfig { return s.cfg }

// BufferSizeInFrames implements hal.PlaybackStream.
func (s *PlaybackStream) BufferSizeInFrames() int { return s.cfg.BufferSizeInFrames() }

// Play implements hal.PlaybackStream.
func (s *PlaybackStream) Play() error { return s.start() }

// Stop implements hal.PlaybackStream.
func (s *PlaybackStream) Stop() error { return s.stop() }

// Flush implements hal.PlaybackStream.
func (s *PlaybackStream) Flush() {
	if !s.running.Load() {
		s.fifo.Reset()
	}
}

// Release implements hal.PlaybackStream.
func (s *PlaybackStream) Release() error { return s.release() }

// Write implements hal.PlaybackStream.
func (s *PlaybackStream) Write(p []byte) (int, error) {
	if s.released.Load() {
		return 0, hal.ErrReleased
	}
	return s.fifo.Write(p, s.running.Load)
}

// PlaybackHeadPosition implements hal.PlaybackStream.
func (s *PlaybackStream) PlaybackHeadPosition() int64 { return s.pos.Position() }

// SetPositionNotificationPeriod implements hal.PlaybackStream.
func (s *PlaybackStream) SetPositionNotificationPeriod(frames int) error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	s.pos.SetPeriod(frames)
	return nil
}

// PositionNotificationPeriod implements hal.PlaybackStream.
func (s *PlaybackStream) PositionNotificationPeriod() int { return s.pos.Period() }

// Notifications implements hal.PlaybackStream.
func (s *PlaybackStream) Notifications() <-chan struct{} { return s.pos.C() }

// PlayState implements hal.PlaybackStream.
func (s *PlaybackStream) PlayState() hal.PlayState {
	if s.running.Load() {
		return hal.PlayStatePlaying
	}
	return hal.PlayStateStopped
}

// SetPreferredDevice implements hal.PlaybackStream.
func (s *PlaybackStream) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	return s.reroute(dev, s.onData)
}

// RoutedDevice implements hal.PlaybackStream.
func (s *PlaybackStream) RoutedDevice() *hal.DeviceInfo { return s.routedDevice() }

// CaptureStream is a malgo-backed hal.CaptureStream.
type CaptureStream struct {
	*device
	data chan struct{}
}

func newCaptureStream(b *Backend, cfg hal.StreamConfig) *CaptureStream {
	return &CaptureStream{
		device: newDevice(b, cfg, hal.Input),
		data:   make(chan struct{}, 1),
	}
}

func (s *CaptureStream) initDevice(want *hal.DeviceInfo) error {
	return s.open(want, s.onData)
}

func (s *CaptureStream) onData(_, in []byte, frames uint32) {
	if !s.running.Load() {
		return
	}
	s.fifo.Offer(in)
	s.pos.Advance(int(frames))
	s.wake()
}

func (s *CaptureStream) wake() {
	select {
	case s.data <- struct{}{}:
	default:
	}
}

// Config implements hal.CaptureStream.
func (s *CaptureStream) Config() hal.StreamConfig { return s.cfg }

// BufferSizeInFrames implements hal.CaptureStream.
func (s *CaptureStream) BufferSizeInFrames() int { return s.cfg.BufferSizeInFrames() }

// StartRecording implements hal.CaptureStream.
// Audio queued before the start is discarded.
func (s *CaptureStream) StartRecording() error {
	s.fifo.Reset()
	return s.start()
}

// Stop implements hal.CaptureStream.
func (s *CaptureStream) Stop() error {
	err := s.stop()
	s.wake()
	return err
}

// Release implements hal.CaptureStream.
func (s *CaptureStream) Release() error {
	err := s.release()
	s.wake()
	return err
}

// Read implements hal.CaptureStream.
func (s *CaptureStream) Read(p []byte, mode hal.ReadMode) (int, error) {
	if s.released.Load() {
		return 0, hal.ErrReleased
	}
	if !s.running.Load() {
		return 0, hal.ErrIllegalState
	}
	if mode == hal.ReadNonBlocking {
		return s.fifo.Read(p)
	}
	return hal.ReadFull(s.fifo, p, s.active, s.data)
}

func (s *CaptureStream) active() bool {
	return s.running.Load() && !s.released.Load()
}

// SetPositionNotificationPeriod implements hal.CaptureStream.
func (s *CaptureStream) SetPositionNotificationPeriod(frames int) error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	s.pos.SetPeriod(frames)
	return nil
}

// PositionNotificationPeriod implements hal.CaptureStream.
func (s *CaptureStream) PositionNotificationPeriod() int { return s.pos.Period() }

// Notifications implements hal.CaptureStream.
func (s *CaptureStream) Notifications() <-chan struct{} { return s.pos.C() }

// RecordingState implements hal.CaptureStream.
func (s *CaptureStream) RecordingState() hal.RecordState {
	if s.running.Load() {
		return hal.RecordStateRecording
	}
	return hal.RecordStateStopped
}

// SetPreferredDevice implements hal.CaptureStream.
func (s *CaptureStream) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	return s.reroute(dev, s.onData)
}

// RoutedDevice implements hal.CaptureStream.
func (s *CaptureStream) RoutedDevice() *hal.DeviceInfo { return s.routedDevice() }
