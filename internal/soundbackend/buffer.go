package soundbackend

import "github.com/tphakala/soundbackend/internal/hal"

// SharedBuffer is the fixed PCM16 region an engine shares with the voice
// engine. It is allocated once and never grows or moves. Access is not
// locked: the engine touches it only on its worker, and the voice engine
// only from inside AcquireData or ProcessData.
type SharedBuffer struct {
	data     []byte
	channels int
}

// NewSharedBuffer allocates size bytes for PCM16 with the given channel count.
func NewSharedBuffer(size, channels int) *SharedBuffer {
	return &SharedBuffer{data: make([]byte, size), channels: channels}
}

// Bytes returns the whole region.
func (b *SharedBuffer) Bytes() []byte { return b.data }

// Len returns the capacity in bytes.
func (b *SharedBuffer) Len() int { return len(b.data) }

// Frames returns the capacity in frames.
func (b *SharedBuffer) Frames() int {
	if b.channels == 0 {
		return 0
	}
	return len(b.data) / (b.channels * hal.BytesPerSample)
}

// span returns the prefix holding frames frames, clamped to the capacity.
func (b *SharedBuffer) span(frames int) []byte {
	n := min(frames*b.channels*hal.BytesPerSample, len(b.data))
	return b.data[:max(n, 0)]
}
