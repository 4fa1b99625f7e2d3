package soundbackend

import (
	"runtime"
	"sync"

	"github.com/tphakala/soundbackend/internal/logger"
)

// worker runs an engine's periodic callback on one locked OS thread.
type worker struct {
	name     string
	log      logger.Logger
	notify   <-chan struct{}
	callback func() bool
	graceful bool

	ready    chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// startWorker launches the worker goroutine and returns once it is running.
// callback returning false ends the loop.
func startWorker(name string, log logger.Logger, notify <-chan struct{}, graceful bool, callback func() bool) *worker {
	w := &worker{
		name:     name,
		log:      log,
		notify:   notify,
		callback: callback,
		graceful: graceful,
		ready:    make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	<-w.ready
	return w
}

func (w *worker) run() {
	defer close(w.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	raiseThreadPriority(w.log)

	w.log.Debug("audio worker started", logger.String("worker", w.name))
	close(w.ready)

	for {
		select {
		case <-w.quit:
			if w.graceful {
				w.drain()
			}
			w.log.Debug("audio worker stopped", logger.String("worker", w.name))
			return
		case <-w.notify:
			if !w.callback() {
				w.log.Debug("audio worker ended by callback", logger.String("worker", w.name))
				return
			}
		}
	}
}

// drain runs the callback once more if a notification is already pending.
func (w *worker) drain() {
	select {
	case <-w.notify:
		w.callback()
	default:
	}
}

// stop asks the worker to exit and waits for it. Safe to call repeatedly and
// after the callback already ended the loop. Must not be called from the
// worker itself.
func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}

// exited reports whether the worker goroutine has returned.
func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
