// Package voice provides an in-process voice engine for running the audio
// backend without an external engine attached. Loopback registers as the
// device table, consumes captured PCM and plays it back after a short delay.
package voice

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

// Status codes returned for calls the loopback cannot serve.
const (
	StatusUnknownDevice = -1
	StatusBadFormat     = -2
)

// DefaultQueueMs is the echo queue depth.
const DefaultQueueMs = 200

// Loopback is a DeviceRegistrar, DataProducer and DataConsumer in one.
// Captured frames are converted to the playback format and queued; the
// playback side drains the queue and reports no data while it is empty.
type Loopback struct {
	queueMs int
	log     logger.Logger

	mu    sync.Mutex
	reg   *soundbackend.Registration
	queue *hal.FIFO

	captured atomic.Int64
	played   atomic.Int64
	silent   atomic.Int64
}

// NewLoopback creates a loopback engine holding up to queueMs of audio.
func NewLoopback(queueMs int) *Loopback {
	if queueMs <= 0 {
		queueMs = DefaultQueueMs
	}
	return &Loopback{
		queueMs: queueMs,
		log:     logger.Global().Module("voice"),
	}
}

// RegisterDevice implements soundbackend.DeviceRegistrar.
func (l *Loopback) RegisterDevice(reg soundbackend.Registration) int {
	if reg.CaptureBuffer == nil || reg.PlaybackBuffer == nil ||
		reg.PlaybackChannels <= 0 || reg.CaptureChannels <= 0 ||
		reg.PlaybackSampleRate <= 0 || reg.CaptureSampleRate <= 0 {
		l.log.Warn("rejecting registration with incomplete format",
			logger.String("device_id", reg.DeviceID))
		return StatusBadFormat
	}

	bytesPerMs := reg.PlaybackSampleRate * reg.PlaybackChannels * hal.BytesPerSample / 1000
	l.mu.Lock()
	if l.queue != nil {
		l.queue.Close()
	}
	l.reg = &reg
	l.queue = hal.NewFIFO(bytesPerMs * l.queueMs)
	l.mu.Unlock()

	l.log.Info("loopback device registered",
		logger.String("device_id", reg.DeviceID),
		logger.Int("capture_rate", reg.CaptureSampleRate),
		logger.Int("playback_rate", reg.PlaybackSampleRate),
		logger.Int("queue_ms", l.queueMs))
	return soundbackend.StatusOK
}

// UnregisterDevice implements soundbackend.DeviceRegistrar.
func (l *Loopback) UnregisterDevice(deviceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reg == nil || l.reg.DeviceID != deviceID {
		return StatusUnknownDevice
	}
	l.queue.Close()
	l.reg = nil
	l.queue = nil
	return soundbackend.StatusOK
}

func (l *Loopback) current(deviceID string) (*soundbackend.Registration, *hal.FIFO) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reg == nil || l.reg.DeviceID != deviceID {
		return nil, nil
	}
	return l.reg, l.queue
}

// ProcessData implements soundbackend.DataConsumer.
func (l *Loopback) ProcessData(deviceID string, frames int) int {
	reg, queue := l.current(deviceID)
	if reg == nil {
		return StatusUnknownDevice
	}
	n := frames * reg.CaptureChannels * hal.BytesPerSample
	if n > reg.CaptureBuffer.Len() {
		return soundbackend.StatusBufferTooSmall
	}

	pcm := Convert(reg.CaptureBuffer.Bytes()[:n],
		reg.CaptureChannels, reg.CaptureSampleRate,
		reg.PlaybackChannels, reg.PlaybackSampleRate)
	// oldest audio is dropped when playback falls behind
	_, _ = queue.Write(pcm, nil)
	l.captured.Add(int64(frames))
	return soundbackend.StatusOK
}

// AcquireData implements soundbackend.DataProducer.
func (l *Loopback) AcquireData(deviceID string, frames int) int {
	reg, queue := l.current(deviceID)
	if reg == nil {
		return StatusUnknownDevice
	}
	n := frames * reg.PlaybackChannels * hal.BytesPerSample
	if n > reg.PlaybackBuffer.Len() {
		return soundbackend.StatusBufferTooSmall
	}

	if queue.Drain(reg.PlaybackBuffer.Bytes()[:n]) == 0 {
		l.silent.Add(int64(frames))
		return soundbackend.StatusNoData
	}
	l.played.Add(int64(frames))
	return soundbackend.StatusOK
}

// Stats counts frames moved through the loopback.
type Stats struct {
	CapturedFrames int64 `json:"captured_frames"`
	PlayedFrames   int64 `json:"played_frames"`
	SilentFrames   int64 `json:"silent_frames"`
	QueuedBytes    int   `json:"queued_bytes"`
}

// Stats returns the current counters.
func (l *Loopback) Stats() Stats {
	s := Stats{
		CapturedFrames: l.captured.Load(),
		PlayedFrames:   l.played.Load(),
		SilentFrames:   l.silent.Load(),
	}
	l.mu.Lock()
	if l.queue != nil {
		s.QueuedBytes = l.queue.Length()
	}
	l.mu.Unlock()
	return s
}

// Convert re-frames little-endian PCM16 between channel counts and sample
// rates. Mono is duplicated into every output channel; multi-channel input
// is averaged down to mono. Rate changes pick the nearest earlier frame.
func Convert(src []byte, srcCh, srcRate, dstCh, dstRate int) []byte {
	if srcCh == dstCh && srcRate == dstRate {
		return src
	}
	srcFrames := len(src) / (srcCh * hal.BytesPerSample)
	dstFrames := srcFrames
	if srcRate != dstRate {
		dstFrames = int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	}

	out := make([]byte, dstFrames*dstCh*hal.BytesPerSample)
	for i := range dstFrames {
		j := i
		if srcRate != dstRate {
			j = int(int64(i) * int64(srcRate) / int64(dstRate))
		}
		frame := src[j*srcCh*hal.BytesPerSample:]

		var mono int32
		for c := range srcCh {
			mono += int32(int16(binary.LittleEndian.Uint16(frame[c*hal.BytesPerSample:])))
		}
		mono /= int32(srcCh)

		for c := range dstCh {
			sample := mono
			if srcCh == dstCh {
				sample = int32(int16(binary.LittleEndian.Uint16(frame[c*hal.BytesPerSample:])))
			}
			binary.LittleEndian.PutUint16(out[(i*dstCh+c)*hal.BytesPerSample:], uint16(int16(sample)))
		}
	}
	return out
}
