package hal

import (
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/soundbackend/internal/errors"
)

// FIFO is the byte queue standing in for a device's hardware buffer.
// Writers and the device clock share it; all methods are safe for concurrent use.
type FIFO struct {
	mu      sync.Mutex
	space   *sync.Cond
	rb      *ringbuffer.RingBuffer
	scratch []byte
	closed  bool
	dropped int64
	overrun bool
}

// NewFIFO creates a FIFO holding capacity bytes.
func NewFIFO(capacity int) *FIFO {
	if capacity <= 0 {
		capacity = BytesPerSample
	}
	f := &FIFO{
		rb:      ringbuffer.New(capacity),
		scratch: make([]byte, capacity),
	}
	f.space = sync.NewCond(&f.mu)
	return f
}

// Capacity returns the FIFO size in bytes.
func (f *FIFO) Capacity() int {
	return len(f.scratch)
}

// Length returns the number of queued bytes.
func (f *FIFO) Length() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rb.Length()
}

// Dropped returns the number of bytes discarded to make room.
func (f *FIFO) Dropped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Write queues all of p. When the FIFO is full, Write waits for the reader
// while wait returns true and otherwise drops the oldest queued bytes.
// wait is evaluated with the FIFO lock held and must not block.
func (f *FIFO) Write(p []byte, wait func() bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	written := 0
	for written < len(p) {
		if f.closed {
			return written, ErrReleased
		}

		free := f.rb.Free()
		if free == 0 {
			if wait != nil && wait() {
				f.space.Wait()
				continue
			}
			f.discardLocked(min(len(p)-written, f.rb.Capacity()))
			continue
		}

		n, err := f.rb.Write(p[written : written+min(free, len(p)-written)])
		written += n
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return written, err
		}
	}
	return written, nil
}

// Offer queues as much of p as fits without waiting or dropping. When p does
// not fit completely, the remainder is lost and the next Read reports ErrOverrun.
func (f *FIFO) Offer(p []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}
	n := min(f.rb.Free(), len(p))
	if n > 0 {
		n, _ = f.rb.Write(p[:n])
	}
	if n < len(p) {
		f.overrun = true
		f.dropped += int64(len(p) - n)
	}
	return n
}

// Read copies queued bytes into p without waiting. An empty FIFO returns 0.
func (f *FIFO) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.overrun {
		f.overrun = false
		return 0, ErrOverrun
	}
	return f.readLocked(p), nil
}

// Drain fills p from the FIFO and zero-fills whatever is missing. It returns
// the number of real bytes copied; the rest of p is silence.
func (f *FIFO) Drain(p []byte) int {
	f.mu.Lock()
	n := f.readLocked(p)
	f.mu.Unlock()

	clear(p[n:])
	return n
}

func (f *FIFO) readLocked(p []byte) int {
	if f.rb.IsEmpty() || len(p) == 0 {
		return 0
	}
	n, err := f.rb.Read(p)
	if err != nil && n == 0 {
		return 0
	}
	f.space.Broadcast()
	return n
}

// Reset discards every queued byte.
func (f *FIFO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rb.Reset()
	f.overrun = false
	f.space.Broadcast()
}

// Wake re-evaluates blocked writers, e.g. after the stream stopped.
func (f *FIFO) Wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.space.Broadcast()
}

// Close fails pending and future writes with ErrReleased.
func (f *FIFO) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.space.Broadcast()
}

func (f *FIFO) discardLocked(n int) {
	if n <= 0 {
		return
	}
	got, _ := f.rb.Read(f.scratch[:n])
	f.dropped += int64(got)
}

// ReadFull fills p from f, waiting on wake while active reports true.
// It returns a short count once the stream is no longer active.
func ReadFull(f *FIFO, p []byte, active func() bool, wake <-chan struct{}) (int, error) {
	total := 0
	for total < len(p) {
		n, err := f.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if total == len(p) || !active() {
			break
		}
		<-wake
	}
	return total, nil
}
