package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/soundbackend"
)

// DefaultWatchInterval is how often Watch samples the engine status.
const DefaultWatchInterval = 2 * time.Second

// StatusSource reports the engine status. *soundbackend.Backend implements it.
type StatusSource interface {
	Status() soundbackend.BackendStatus
}

type engineState struct {
	state soundbackend.StreamState
	seen  bool
}

// Watcher turns engine state transitions into alerts.
type Watcher struct {
	source   StatusSource
	notifier *Notifier
	interval time.Duration
	log      logger.Logger

	playback engineState
	record   engineState
}

// NewWatcher creates a watcher sampling source every interval.
func NewWatcher(source StatusSource, notifier *Notifier, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		source:   source,
		notifier: notifier,
		interval: interval,
		log:      logger.Global().Module("notification"),
	}
}

// Run samples until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Check(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check samples the status once and sends an alert for every engine that
// terminated with an error or came back since the previous sample. An
// engine shut down on request carries no error and is not reported.
func (w *Watcher) Check(ctx context.Context) {
	status := w.source.Status()
	w.compare(ctx, "playback", &w.playback, status.Playback)
	w.compare(ctx, "record", &w.record, status.Record)
}

func (w *Watcher) compare(ctx context.Context, name string, prev *engineState, cur *soundbackend.Status) {
	if cur == nil {
		*prev = engineState{}
		return
	}
	last := *prev
	*prev = engineState{state: cur.State, seen: true}
	if !last.seen {
		return
	}

	var key, message string
	switch {
	case cur.State == soundbackend.StateTerminated && last.state != soundbackend.StateTerminated:
		if cur.Error == "" {
			w.log.Debug("engine shut down", logger.String("engine", name))
			return
		}
		key = name + "_terminated"
		message = fmt.Sprintf("%s engine terminated: %s", name, cur.Error)
	case last.state == soundbackend.StateTerminated && cur.State != soundbackend.StateTerminated:
		key = name + "_recovered"
		message = fmt.Sprintf("%s engine recovered", name)
	default:
		return
	}

	if err := w.notifier.Notify(ctx, key, message); err != nil {
		w.log.Warn("alert not delivered", logger.String("key", key), logger.Error(err))
	}
}
