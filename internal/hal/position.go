package hal

import (
	"sync"
)

// PositionTracker counts frames moved by a device and signals every time the
// count crosses a multiple of the notification period.
type PositionTracker struct {
	mu       sync.Mutex
	position int64
	period   int64
	nextMark int64
	notify   chan struct{}
}

// NewPositionTracker creates a tracker with notifications disabled.
func NewPositionTracker() *PositionTracker {
	// One pending signal is enough: a late worker computes the position delta itself.
	return &PositionTracker{notify: make(chan struct{}, 1)}
}

// C returns the notification channel.
func (p *PositionTracker) C() <-chan struct{} {
	return p.notify
}

// Position returns the frame count since the last Reset.
func (p *PositionTracker) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Period returns the notification period in frames.
func (p *PositionTracker) Period() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.period)
}

// SetPeriod arms notifications every frames frames from the current position.
// Zero or negative disables them.
func (p *PositionTracker) SetPeriod(frames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if frames <= 0 {
		p.period = 0
		p.nextMark = 0
		return
	}
	p.period = int64(frames)
	p.nextMark = p.position + p.period
}

// Advance adds frames to the position and signals if a period boundary was crossed.
func (p *PositionTracker) Advance(frames int) {
	if frames <= 0 {
		return
	}
	p.mu.Lock()
	p.position += int64(frames)
	crossed := false
	if p.period > 0 && p.position >= p.nextMark {
		crossed = true
		skipped := (p.position - p.nextMark) / p.period
		p.nextMark += (skipped + 1) * p.period
	}
	p.mu.Unlock()

	if crossed {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

// Reset sets the position back to zero and re-arms the period from there.
func (p *PositionTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = 0
	if p.period > 0 {
		p.nextMark = p.period
	}
}
