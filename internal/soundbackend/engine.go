package soundbackend

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/soundbackend/internal/audiotap"
	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

// startRetryInterval is the pause between start attempts while the device
// reports ErrIllegalState.
const startRetryInterval = 20 * time.Millisecond

// ErrDeviceOpen is returned when no hardware stream could be created.
var ErrDeviceOpen = errors.NewStd("soundbackend: audio device could not be opened")

// Options tune engine construction. The zero value uses the device defaults.
type Options struct {
	// SampleRate is the playback rate; zero selects the native output rate.
	SampleRate int
	// Channels is the playback channel count; zero selects stereo.
	Channels int
	// PeriodMs is the playback notification period; zero selects 10 ms.
	PeriodMs int
	// Device is the preferred endpoint, nil for the system default.
	Device *hal.DeviceInfo
	// BlockingCapture forces blocking capture reads even when the backend
	// supports non-blocking ones.
	BlockingCapture bool
	// Recorder receives engine metrics. Nil disables them.
	Recorder metrics.EngineRecorder
	// TapDir, when set, receives a WAV copy of all audio the engine moves.
	TapDir string
}

func (o Options) recorder() metrics.EngineRecorder {
	if o.Recorder == nil {
		return metrics.NoOpRecorder{}
	}
	return o.Recorder
}

// Status is a point-in-time snapshot of one engine.
type Status struct {
	ID           string          `json:"id"`
	Direction    string          `json:"direction"`
	State        StreamState     `json:"state"`
	Paused       bool            `json:"paused"`
	Functional   bool            `json:"functional"`
	SampleRate   int             `json:"sample_rate"`
	Channels     int             `json:"channels"`
	BufferBytes  int             `json:"buffer_bytes"`
	DeviceBuffer int             `json:"device_buffer_bytes"`
	PeriodFrames int             `json:"period_frames"`
	Frames       int64           `json:"frames"`
	Device       *hal.DeviceInfo `json:"device,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// lifecycle is the state shared by both engines. mu serializes SetState;
// the worker callback never takes it.
type lifecycle struct {
	id        string
	direction hal.Direction
	log       logger.Logger
	rec       metrics.EngineRecorder

	mu     sync.Mutex
	worker *worker

	state  atomic.Int32
	paused atomic.Bool
	frames atomic.Int64
	fatal  atomic.Pointer[errors.EnhancedError]

	startMu      sync.Mutex
	startSeq     uint64
	cancelStarts map[uint64]context.CancelFunc

	tap     *audiotap.Writer
	tapOnce sync.Once
}

func (l *lifecycle) init(direction hal.Direction, module string, rec metrics.EngineRecorder) {
	l.id = uuid.NewString()
	l.direction = direction
	l.rec = rec
	l.log = logger.Global().Module("soundbackend").Module(module).With(logger.String("engine_id", l.id))
	l.paused.Store(true)
	l.setState(StateStopped)
}

// State returns the current lifecycle state.
func (l *lifecycle) State() StreamState {
	return StreamState(l.state.Load())
}

// Paused reports whether callbacks are currently suppressed.
func (l *lifecycle) Paused() bool {
	return l.paused.Load()
}

// setState moves to s unless the engine is already terminated.
func (l *lifecycle) setState(s StreamState) bool {
	for {
		cur := l.state.Load()
		if StreamState(cur) == StateTerminated && s != StateTerminated {
			return false
		}
		if l.state.CompareAndSwap(cur, int32(s)) {
			l.rec.RecordState(l.direction.String(), int(s))
			return true
		}
	}
}

// transition moves from one of the given states to s.
func (l *lifecycle) transition(s StreamState, from ...StreamState) bool {
	for _, f := range from {
		if l.state.CompareAndSwap(int32(f), int32(s)) {
			l.rec.RecordState(l.direction.String(), int(s))
			return true
		}
	}
	return false
}

// beginStart registers a cancel function so Stop, Pause and Shutdown can cut
// pending start retries short. Every caller gets its own entry, including
// Starts still queued on mu. The returned func must be deferred.
func (l *lifecycle) beginStart(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	l.startMu.Lock()
	if l.cancelStarts == nil {
		l.cancelStarts = make(map[uint64]context.CancelFunc)
	}
	l.startSeq++
	id := l.startSeq
	l.cancelStarts[id] = cancel
	l.startMu.Unlock()

	return ctx, func() {
		l.startMu.Lock()
		delete(l.cancelStarts, id)
		l.startMu.Unlock()
		cancel()
	}
}

// interruptStart cancels every pending start.
func (l *lifecycle) interruptStart() {
	l.startMu.Lock()
	for _, cancel := range l.cancelStarts {
		cancel()
	}
	l.startMu.Unlock()
}

// ensureWorker starts the worker if none is running. Caller holds mu.
func (l *lifecycle) ensureWorker(notify <-chan struct{}, graceful bool, callback func() bool) {
	if l.worker != nil && !l.worker.exited() {
		return
	}
	l.worker = startWorker(l.direction.String(), l.log, notify, graceful, callback)
}

// stopWorker tears the worker down and waits for it. Caller holds mu.
func (l *lifecycle) stopWorker() {
	if l.worker == nil {
		return
	}
	l.worker.stop()
	l.worker = nil
}

func (l *lifecycle) openTap(dir, name string, sampleRate, channels int) {
	if dir == "" {
		return
	}
	path := filepath.Join(dir, name+"-"+l.id+".wav")
	w, err := audiotap.Create(path, sampleRate, channels)
	if err != nil {
		l.log.Warn("debug tap disabled", logger.String("path", path), logger.Error(err))
		return
	}
	l.tap = w
	l.log.Info("debug tap enabled", logger.String("path", path))
}

func (l *lifecycle) writeTap(p []byte) {
	if l.tap == nil || len(p) == 0 {
		return
	}
	if _, err := l.tap.Write(p); err != nil {
		l.log.Debug("debug tap write failed", logger.Error(err))
	}
}

func (l *lifecycle) closeTap() {
	if l.tap == nil {
		return
	}
	l.tapOnce.Do(func() {
		if err := l.tap.Close(); err != nil {
			l.log.Warn("closing debug tap failed", logger.Error(err))
		}
	})
}

// retryIllegalState runs op until it succeeds, fails with anything other
// than hal.ErrIllegalState, or ctx is done. It returns the number of retries.
func retryIllegalState(ctx context.Context, op func() error, onRetry func(err error)) (int, error) {
	retries := 0
	for {
		err := op()
		if err == nil || !errors.Is(err, hal.ErrIllegalState) {
			return retries, err
		}
		retries++
		onRetry(err)

		t := time.NewTimer(startRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return retries, ctx.Err()
		case <-t.C:
		}
	}
}
