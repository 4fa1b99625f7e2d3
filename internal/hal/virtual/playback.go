package virtual

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// PlaybackStream is a virtual output stream. The device side consumes the
// FIFO on every clock tick and zero-fills underruns.
type PlaybackStream struct {
	backend *Backend
	cfg     hal.StreamConfig
	fifo    *hal.FIFO
	pos     *hal.PositionTracker
	clock   clock

	state    atomic.Int32
	released atomic.Bool

	tickMu    sync.Mutex
	tickBuf   []byte
	sink      *audiotap.Writer
	underruns int64
	played    int64

	mu        sync.Mutex
	preferred *hal.DeviceInfo
	stops     int
	flushes   int
}

func newPlaybackStream(b *Backend, cfg hal.StreamConfig) *PlaybackStream {
	s := &PlaybackStream{
		backend: b,
		cfg:     cfg,
		fifo:    hal.NewFIFO(cfg.BufferSizeBytes),
		pos:     hal.NewPositionTracker(),
	}
	if cfg.Device != nil {
		d := *cfg.Device
		s.preferred = &d
	}
	s.state.Store(int32(hal.PlayStateStopped))
	return s
}

// Config implements hal.PlaybackStream.
func (s *PlaybackStream) Config() hal.StreamConfig { return s.cfg }

// BufferSizeInFrames implements hal.PlaybackStream.
func (s *PlaybackStream) BufferSizeInFrames() int { return s.cfg.BufferSizeInFrames() }

// Play implements hal.PlaybackStream.
func (s *PlaybackStream) Play() error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	if s.backend.takeIllegalStart() {
		return hal.ErrIllegalState
	}

	s.state.Store(int32(hal.PlayStatePlaying))
	if s.backend.cfg.Clock == ClockRealtime {
		frames := s.cfg.SampleRate * s.backend.cfg.TickMs / 1000
		s.clock.start(time.Duration(s.backend.cfg.TickMs)*time.Millisecond, func() { s.Tick(frames) })
	}
	return nil
}

// Stop halts playback and rewinds the head position. Queued data is kept.
func (s *PlaybackStream) Stop() error {
	if s.released.Load() {
		return hal.ErrReleased
	}
	s.state.Store(int32(hal.PlayStateStopped))
	s.clock.halt()
	s.fifo.Wake()
	s.pos.Reset()

	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	return nil
}

// Flush discards queued data. It has no effect while playing.
func (s *PlaybackStream) Flush() {
	if s.PlayState() == hal.PlayStatePlaying {
		return
	}
	s.fifo.Reset()

	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

// Release implements hal.PlaybackStream. Repeated calls are no-ops.
func (s *PlaybackStream) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(hal.PlayStateStopped))
	s.clock.halt()
	s.fifo.Close()

	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.backend.log.Warn("closing playback sink failed",
				logger.String("path", s.sink.Path()),
				logger.Error(err))
			return err
		}
	}
	return nil
}

// Released reports whether Release was called.
func (s *PlaybackStream) Released() bool { return s.released.Load() }

// Write implements hal.PlaybackStream.
func (s *PlaybackStream) Write(p []byte) (int, error) {
	if s.released.Load() {
		return 0, hal.ErrReleased
	}
	return s.fifo.Write(p, s.waitForSpace)
}

func (s *PlaybackStream) waitForSpace() bool {
	return !s.released.Load() && hal.PlayState(s.state.Load()) == hal.PlayStatePlaying
}

// Tick consumes frames from the FIFO as the device would. It returns the
// number of frames consumed, zero when not playing.
func (s *PlaybackStream) Tick(frames int) int {
	if frames <= 0 || hal.PlayState(s.state.Load()) != hal.PlayStatePlaying {
		return 0
	}

	s.tickMu.Lock()
	size := frames * s.cfg.FrameBytes()
	if cap(s.tickBuf) < size {
		s.tickBuf = make([]byte, size)
	}
	buf := s.tickBuf[:size]
	if n := s.fifo.Drain(buf); n < size {
		s.underruns++
	}
	s.played += int64(frames)
	if s.sink != nil {
		if _, err := s.sink.Write(buf); err != nil {
			s.backend.log.Warn("writing playback sink failed", logger.Error(err))
		}
	}
	s.tickMu.Unlock()

	s.pos.Advance(frames)
	return frames
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
func (s *PlaybackStream) PlayState() hal.PlayState { return hal.PlayState(s.state.Load()) }

// SetPreferredDevice implements hal.PlaybackStream.
func (s *PlaybackStream) SetPreferredDevice(dev *hal.DeviceInfo) bool {
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

// RoutedDevice implements hal.PlaybackStream.
func (s *PlaybackStream) RoutedDevice() *hal.DeviceInfo {
	s.mu.Lock()
	preferred := s.preferred
	s.mu.Unlock()
	if preferred != nil {
		d := *preferred
		return &d
	}
	return s.backend.defaultDevice(hal.Output)
}

// Underruns returns how many ticks found less data than requested.
func (s *PlaybackStream) Underruns() int64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.underruns
}

// FramesPlayed returns the total frames consumed by the device.
func (s *PlaybackStream) FramesPlayed() int64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.played
}

// Queued returns the number of bytes waiting in the FIFO.
func (s *PlaybackStream) Queued() int { return s.fifo.Length() }

// Stops returns how many times Stop succeeded.
func (s *PlaybackStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Flushes returns how many times Flush discarded data.
func (s *PlaybackStream) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
