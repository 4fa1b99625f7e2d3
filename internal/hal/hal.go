// Package hal defines the hardware stream abstraction the audio engines run on.
//
// A Backend opens PlaybackStream and CaptureStream values. Streams expose a
// frame position counter that advances as the device consumes or produces
// audio, and signal a notification channel every time the position crosses a
// configured period. Engines drive their real-time loops from that channel.
package hal

import (
	"strings"

	"github.com/tphakala/soundbackend/internal/errors"
)

// BytesPerSample is fixed: every stream carries PCM16.
const BytesPerSample = 2

// Direction of a stream or device.
type Direction int

const (
	Output Direction = iota
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// ParseDirection parses a direction name or one of its aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "output", "out", "playback":
		return Output, nil
	case "input", "in", "capture", "record":
		return Input, nil
	}
	return Output, errors.Newf("unknown direction %q", s).
		Component("hal").
		Category(errors.CategoryValidation).
		Build()
}

// PlayState mirrors the hardware playback state.
type PlayState int

const (
	PlayStateStopped PlayState = iota
	PlayStatePaused
	PlayStatePlaying
)

// RecordState mirrors the hardware capture state.
type RecordState int

const (
	RecordStateStopped RecordState = iota
	RecordStateRecording
)

// ReadMode selects how CaptureStream.Read waits for data.
type ReadMode int

const (
	ReadNonBlocking ReadMode = iota
	ReadBlocking
)

var (
	// ErrIllegalState is returned when a stream is not ready for the requested
	// operation. Starting playback may return it transiently.
	ErrIllegalState = errors.NewStd("hal: illegal stream state")
	// ErrBadValue is returned by MinBufferSize for unsupported parameters.
	ErrBadValue = errors.NewStd("hal: unsupported stream parameters")
	// ErrReleased is returned by operations on a released stream.
	ErrReleased = errors.NewStd("hal: stream released")
	// ErrOverrun is returned once by Read after captured data was dropped.
	ErrOverrun = errors.NewStd("hal: capture overrun")
)

// StreamConfig describes the format and buffer of a hardware stream.
type StreamConfig struct {
	SampleRate      int
	Channels        int
	BufferSizeBytes int
	// Device is the preferred endpoint, nil for the system default.
	Device *DeviceInfo
}

// FrameBytes returns the size of one frame in bytes.
func (c StreamConfig) FrameBytes() int {
	return c.Channels * BytesPerSample
}

// BufferSizeInFrames returns the hardware buffer size in frames.
func (c StreamConfig) BufferSizeInFrames() int {
	if c.Channels <= 0 {
		return 0
	}
	return c.BufferSizeBytes / c.FrameBytes()
}

// PlaybackStream is an opened hardware output stream.
type PlaybackStream interface {
	Config() StreamConfig
	BufferSizeInFrames() int

	// Play starts playback. It may fail with ErrIllegalState while the
	// device is still settling; callers retry.
	Play() error
	Stop() error
	Flush()
	Release() error

	// Write queues PCM bytes. While playing it blocks until the device has
	// room; while stopped the oldest queued bytes are dropped instead.
	Write(p []byte) (int, error)

	// PlaybackHeadPosition returns frames played since the last start.
	PlaybackHeadPosition() int64
	// SetPositionNotificationPeriod arms a notification every frames frames.
	// Zero disables notifications.
	SetPositionNotificationPeriod(frames int) error
	PositionNotificationPeriod() int
	Notifications() <-chan struct{}

	PlayState() PlayState
	SetPreferredDevice(dev *DeviceInfo) bool
	// RoutedDevice returns the endpoint the stream currently plays to, nil
	// when unknown.
	RoutedDevice() *DeviceInfo
}

// CaptureStream is an opened hardware input stream.
type CaptureStream interface {
	Config() StreamConfig
	BufferSizeInFrames() int

	StartRecording() error
	Stop() error
	Release() error

	// Read copies captured bytes into p. It returns ErrOverrun once after
	// captured data had to be dropped.
	Read(p []byte, mode ReadMode) (int, error)

	SetPositionNotificationPeriod(frames int) error
	PositionNotificationPeriod() int
	Notifications() <-chan struct{}

	RecordingState() RecordState
	SetPreferredDevice(dev *DeviceInfo) bool
	RoutedDevice() *DeviceInfo
}

// Backend opens hardware streams and enumerates endpoints.
type Backend interface {
	Name() string
	Capabilities() Capabilities

	// NativeOutputSampleRate returns the output rate the device runs at natively.
	NativeOutputSampleRate() (int, error)
	// MinBufferSize returns the smallest workable buffer in bytes, or
	// ErrBadValue when the rate/channel combination is unsupported.
	MinBufferSize(dir Direction, sampleRate, channels int) (int, error)

	OpenPlayback(cfg StreamConfig) (PlaybackStream, error)
	OpenCapture(cfg StreamConfig) (CaptureStream, error)

	Devices(dir Direction) ([]DeviceInfo, error)
	Close() error
}
