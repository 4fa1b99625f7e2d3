package devices

import (
	"context"
	"sync"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/logger"
	"github.com/tphakala/soundbackend/internal/observability/metrics"
)

// RouterOptions tune event handling.
type RouterOptions struct {
	// ProximitySpeaker turns the speakerphone off while something is near
	// the device and back on when it moves away.
	ProximitySpeaker bool
	Recorder         metrics.RouteRecorder
}

// Router keeps the device availability table and applies the SCO and
// speakerphone side effects when a kind becomes available or unavailable.
// Side effects run on transitions only, so repeated events are no-ops.
// Router is safe for concurrent use.
type Router struct {
	am   AudioManager
	opts RouterOptions
	log  logger.Logger
	rec  metrics.RouteRecorder

	mu        sync.Mutex
	available [numKinds]bool
	near      bool
	noisy     []func(context.Context)
}

const numKinds = int(KindBluetoothHeadset) + 1

// NewRouter creates a router with only KindNormal available.
func NewRouter(am AudioManager, opts RouterOptions) *Router {
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoOpRecorder{}
	}
	r := &Router{
		am:   am,
		opts: opts,
		log:  GetLogger().Module("router"),
		rec:  rec,
	}
	r.available[KindNormal] = true
	return r
}

// Available reports whether kind is available.
func (r *Router) Available(kind Kind) bool {
	if !kind.valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available[kind]
}

// Availability is one row of the availability table.
type Availability struct {
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"display_name"`
	Available   bool   `json:"available"`
}

// Table returns the availability of every kind.
func (r *Router) Table() []Availability {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Availability, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, Availability{Kind: k, DisplayName: k.DisplayName(), Available: r.available[k]})
	}
	return out
}

// SetAvailable marks kind available or unavailable. It reports whether the
// call caused a transition. KindNormal cannot be made unavailable.
func (r *Router) SetAvailable(kind Kind, available bool) (bool, error) {
	if !kind.valid() {
		return false, errors.Newf("unknown device kind %d", int(kind)).
			Component("devices.router").
			Category(errors.CategoryValidation).
			Build()
	}
	if kind == KindNormal {
		if !available {
			return false, errors.Newf("%s is always available", kind.DisplayName()).
				Component("devices.router").
				Category(errors.CategoryValidation).
				Build()
		}
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available[kind] == available {
		r.log.Debug("availability unchanged",
			logger.String("kind", kind.String()),
			logger.Bool("available", available))
		return false, nil
	}

	r.available[kind] = available
	if available {
		r.log.Info(kind.DisplayName() + " became available")
		r.enableLocked(kind)
	} else {
		r.log.Info(kind.DisplayName() + " became unavailable")
		r.disableLocked(kind)
	}
	r.rec.RecordRouteTransition(kind.String(), available)
	return true, nil
}

func (r *Router) enableLocked(kind Kind) {
	switch kind {
	case KindBluetoothHeadset:
		if r.am.BluetoothScoAvailableOffCall() {
			r.am.SetBluetoothScoOn(true)
			r.am.StartBluetoothSco()
		}
	case KindInternalSpeaker:
		r.am.SetSpeakerphoneOn(true)
	}
}

func (r *Router) disableLocked(kind Kind) {
	switch kind {
	case KindBluetoothHeadset:
		if r.am.BluetoothScoAvailableOffCall() {
			r.am.SetBluetoothScoOn(false)
			r.am.StopBluetoothSco()
		}
	case KindInternalSpeaker:
		r.am.SetSpeakerphoneOn(false)
	}
}

// OnBluetoothHeadsetConnectStatusChange updates the Bluetooth headset
// availability.
func (r *Router) OnBluetoothHeadsetConnectStatusChange(connected bool) {
	_, _ = r.SetAvailable(KindBluetoothHeadset, connected)
}

// HandleHeadsetPlug updates the wired headset availability. A wired headset
// has no routing side effect; the platform switches to it on its own.
func (r *Router) HandleHeadsetPlug(ev HeadsetPlugEvent) {
	r.log.Debug("headset plug event",
		logger.Bool("plugged", ev.State),
		logger.String("name", ev.Name),
		logger.Bool("microphone", ev.Microphone))
	_, _ = r.SetAvailable(KindWiredHeadset, ev.State)
}

// HandleScoState logs SCO link changes. A lost link while a Bluetooth
// headset is still available is reported as a warning.
func (r *Router) HandleScoState(ev ScoStateEvent) {
	fields := []logger.Field{
		logger.String("previous", ev.Previous.String()),
		logger.String("state", ev.State.String()),
	}
	if (ev.State == ScoError || ev.State == ScoDisconnected) && r.Available(KindBluetoothHeadset) {
		r.log.Warn("bluetooth sco link lost while headset is available", fields...)
		return
	}
	r.log.Debug("bluetooth sco state changed", fields...)
}

// SetBluetoothSco starts or stops the SCO link. Requests matching the
// current state and requests on platforms without off-call SCO are ignored.
func (r *Router) SetBluetoothSco(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.am.BluetoothScoAvailableOffCall() {
		return
	}
	switch {
	case on && !r.am.BluetoothScoOn():
		r.log.Debug("bt sco off, starting sco connection")
		r.am.SetBluetoothScoOn(true)
		r.am.StartBluetoothSco()
	case !on && r.am.BluetoothScoOn():
		r.log.Debug("bt sco on, stopping sco connection")
		r.am.SetBluetoothScoOn(false)
		r.am.StopBluetoothSco()
	}
}

// SetSpeakerphone switches the speakerphone, calling the audio manager only
// when the value changes.
func (r *Router) SetSpeakerphone(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setSpeakerphoneLocked(on)
}

func (r *Router) setSpeakerphoneLocked(on bool) {
	if r.am.SpeakerphoneOn() == on {
		return
	}
	r.am.SetSpeakerphoneOn(on)
}

// HandleProximity reacts to the proximity sensor when ProximitySpeaker is
// set: near turns the speakerphone off, far turns it back on.
func (r *Router) HandleProximity(near bool) {
	if !r.opts.ProximitySpeaker {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.near == near {
		return
	}
	r.near = near
	r.log.Debug("proximity changed", logger.Bool("near", near))
	r.setSpeakerphoneLocked(!near)
}

// OnNoisy registers fn to run when the output becomes noisy.
func (r *Router) OnNoisy(fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noisy = append(r.noisy, fn)
}

// HandleNoisy notifies the noisy subscribers, e.g. after a headset was
// pulled and audio is about to leave through the speaker.
func (r *Router) HandleNoisy(ctx context.Context) {
	r.mu.Lock()
	subs := r.noisy
	r.mu.Unlock()

	r.log.Info("audio becoming noisy", logger.Int("subscribers", len(subs)))
	for _, fn := range subs {
		fn(ctx)
	}
}
