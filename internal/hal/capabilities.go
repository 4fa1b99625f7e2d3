package hal

import (
	"fmt"
	"strings"
)

// ReleaseStrategy selects how a stream is torn down on shutdown.
type ReleaseStrategy int

const (
	// ReleaseStopFlush stops the stream, flushes queued data, then releases it.
	ReleaseStopFlush ReleaseStrategy = iota
	// ReleaseDirect releases the stream without the stop/flush steps.
	ReleaseDirect
)

func (r ReleaseStrategy) String() string {
	switch r {
	case ReleaseDirect:
		return "direct"
	default:
		return "stopflush"
	}
}

// ParseReleaseStrategy parses a configuration value. Empty and "auto" return ok=false
// so the backend's own strategy is kept.
func ParseReleaseStrategy(s string) (strategy ReleaseStrategy, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ReleaseStopFlush, false, nil
	case "stopflush":
		return ReleaseStopFlush, true, nil
	case "direct":
		return ReleaseDirect, true, nil
	default:
		return ReleaseStopFlush, false, fmt.Errorf("unknown release strategy %q", s)
	}
}

// Capabilities are resolved once when a backend is created and never re-queried.
type Capabilities struct {
	// NonBlockingRead reports that CaptureStream.Read honours ReadNonBlocking.
	NonBlockingRead bool
	// GracefulQuit lets workers drain pending notifications before exiting.
	GracefulQuit bool
	// PreferredDevice reports that SetPreferredDevice can reroute streams.
	PreferredDevice bool
	Release         ReleaseStrategy
}

// ReleasePlayback tears down a playback stream with the given strategy.
func ReleasePlayback(s PlaybackStream, strategy ReleaseStrategy) error {
	if strategy == ReleaseStopFlush {
		if s.PlayState() != PlayStateStopped {
			_ = s.Stop()
		}
		s.Flush()
	}
	return s.Release()
}

// ReleaseCapture tears down a capture stream with the given strategy.
func ReleaseCapture(s CaptureStream, strategy ReleaseStrategy) error {
	if strategy == ReleaseStopFlush && s.RecordingState() == RecordStateRecording {
		_ = s.Stop()
	}
	return s.Release()
}
