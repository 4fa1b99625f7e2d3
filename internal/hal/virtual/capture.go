package virtual

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/hal"
)

// CaptureStream is a virtual input stream. Each clock tick offers frames from
// the looped source clip (or silence) to the FIFO; data that does not fit is
// lost and reported as an overrun on the next Read.
type CaptureStream struct {
	backend *Backend
	cfg     hal.StreamConfig
	fifo    *hal.FIFO
	pos     *hal.PositionTracker
	clock   clock

	state    atomic.Int32
	released atomic.Bool
	// data wakes blocking readers after a tick, stop or release.
	data chan struct{}

	tickMu   sync.Mutex
	tickBuf  []byte
	source   []byte
	srcPos   int
	captured int64

	mu        sync.Mutex
	preferred *hal.DeviceInfo
	stops     int
}

func newCaptureStream(b *Backend, cfg hal.StreamConfig, clip *audiotap.PCM) *CaptureStream {
	s := &CaptureStream{
		backend: b,
		cfg:     cfg,
		fifo:    hal.NewFIFO(cfg.BufferSizeBytes),
		pos:     hal.NewPositionTracker(),
		data:    make(chan struct{}, 1),
	}
	if clip != nil {
		s.source = clip.Data
	}
	if cfg.Device != nil {
		d := *cfg.Device
		s.preferred = &d
	}
	s.state.Store(int32(hal.RecordStateStopped))
	return s
}

// Config implements hal.CaptureStream.
func (s *CaptureStream) Config() hal.StreamConfig { return s.cfg }

// BufferSizeInFrames implements hal.CaptureStream.
func (s *CaptureStream) BufferSizeInFrames() int { return s.cfg.BufferSizeInFrames() }

// StartRecording implements hal.CaptureStream. Audio queued before the
// start is discarded.
func (s *CaptureStream) StartRecording() error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	s.fifo.Reset()
	s.state.Store(int32(hal.RecordStateRecording))
	if s.backend.cfg.Clock == ClockRealtime {
		frames := s.cfg.SampleRate * s.backend.cfg.TickMs / 1000
		s.clock.start(time.Duration(s.backend.cfg.TickMs)*time.Millisecond, func() { s.Tick(frames) })
	}
	return nil
}

// Stop implements hal.CaptureStream.
func (s *CaptureStream) Stop() error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	s.state.Store(int32(hal.RecordStateStopped))
	s.clock.halt()
	s.pos.Reset()
	s.wake()

	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return nil
}

// Release implements hal.CaptureStream. Repeated calls are no-ops.
func (s *CaptureStream) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(hal.RecordStateStopped))
	s.clock.halt()
	s.fifo.Close()
	s.wake()
	return nil
}

// Released reports whether Release was called.
func (s *CaptureStream) Released() bool { return s.released.Load() }

func (s *CaptureStream) wake() {
	select {
	case s.data <- struct{}{}:
	default:
	}
}

// Read implements hal.CaptureStream. A blocking read returns early with a
// short count when the stream stops.
func (s *CaptureStream) Read(p []byte, mode hal.ReadMode) (int, error) {
	if s.released.Load() {
		return 0, hal.ErrReleased
	}
	if s.RecordingState() != hal.RecordStateRecording {
		return 0, hal.ErrIllegalState
	}

	if mode == hal.ReadNonBlocking {
		return s.fifo.Read(p)
	}

	return hal.ReadFull(s.fifo, p, s.active, s.data)
}

func (s *CaptureStream) active() bool {
	return !s.released.Load() && s.RecordingState() == hal.RecordStateRecording
}

// Tick produces frames as the device would and returns how many were
// produced, zero when not recording.
func (s *CaptureStream) Tick(frames int) int {
	if frames <= 0 || hal.RecordState(s.state.Load()) != hal.RecordStateRecording {
		return 0
	}

	s.tickMu.Lock()
	size := frames * s.cfg.FrameBytes()
	if cap(s.tickBuf) < size {
		s.tickBuf = make([]byte, size)
	}
	buf := s.tickBuf[:size]
	s.fillLocked(buf)
	s.fifo.Offer(buf)
	s.captured += int64(frames)
	s.tickMu.Unlock()

	s.pos.Advance(frames)
	s.wake()
	return frames
}

// fillLocked copies the looped source clip into buf, or silence without one.
func (s *CaptureStream) fillLocked(buf []byte) {
	if len(s.source) == 0 {
		clear(buf)
		return
	}
	for off := 0; off < len(buf); {
		n := copy(buf[off:], s.source[s.srcPos:])
		off += n
		s.srcPos = (s.srcPos + n) % len(s.source)
	}
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
func (s *CaptureStream) RecordingState() hal.RecordState { return hal.RecordState(s.state.Load()) }

// SetPreferredDevice implements hal.CaptureStream.
func (s *CaptureStream) SetPreferredDevice(dev *hal.DeviceInfo) bool {
	if !s.backend.cfg.Capabilities.PreferredDevice || s.released.Load() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if dev == nil {
		s.preferred = nil
		return true
	}
	d := *dev
	s.preferred = &d
	return true
}

// RoutedDevice implements hal.CaptureStream.
func (s *CaptureStream) RoutedDevice() *hal.DeviceInfo {
	s.mu.Lock()
	preferred := s.preferred
	s.mu.Unlock()
	if preferred != nil {
		d := *preferred
		return &d
	}
	return s.backend.defaultDevice(hal.Input)
}

// FramesCaptured returns the total frames produced by the device.
func (s *CaptureStream) FramesCaptured() int64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.captured
}

// Dropped returns the number of captured bytes lost to overruns.
func (s *CaptureStream) Dropped() int64 { return s.fifo.Dropped() }

// Stops returns how many times Stop succeeded.
func (s *CaptureStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
