package virtual

import (
	"sync"
	"time"
)

// clock drives a stream in realtime mode by calling tick every interval.
type clock struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (c *clock) start(interval time.Duration, tick func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				tick()
			}
		}
	}(c.stop, c.done)
}

// halt stops the ticking goroutine and waits for it to exit.
// It must not be called from tick.
func (c *clock) halt() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
