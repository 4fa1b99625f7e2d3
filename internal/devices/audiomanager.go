package devices

import "sync"

// AudioManager is the platform audio routing service the Router drives.
// Implementations must be safe for concurrent use.
type AudioManager interface {
	// BluetoothScoAvailableOffCall reports whether SCO can be used outside a
	// telephony call.
	BluetoothScoAvailableOffCall() bool
	BluetoothScoOn() bool
	SetBluetoothScoOn(on bool)
	StartBluetoothSco()
	StopBluetoothSco()
	SpeakerphoneOn() bool
	SetSpeakerphoneOn(on bool)
}

// RouteChange describes a routing flag flipped on a SoftwareAudioManager.
type RouteChange struct {
	Speakerphone bool
	BluetoothSco bool
}

// ManagerCalls counts the calls made on a SoftwareAudioManager.
type ManagerCalls struct {
	ScoStarts       int
	ScoStops        int
	ScoSets         int
	SpeakerphoneSet int
}

// SoftwareAudioManager keeps routing flags in memory. Hosts without a
// platform audio manager use it, and listeners registered with OnChange
// translate flag changes into preferred devices on the engines.
type SoftwareAudioManager struct {
	scoOffCall bool

	mu        sync.Mutex
	scoOn     bool
	speakerOn bool
	calls     ManagerCalls
	listeners []func(RouteChange)
}

// NewSoftwareAudioManager creates a manager. scoOffCall is what
// BluetoothScoAvailableOffCall reports.
func NewSoftwareAudioManager(scoOffCall bool) *SoftwareAudioManager {
	return &SoftwareAudioManager{scoOffCall: scoOffCall}
}

// OnChange registers fn to run after every flag change. fn runs without the
// manager lock held but may run while the Router holds its own, so it must
// not call back into the Router.
func (m *SoftwareAudioManager) OnChange(fn func(RouteChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *SoftwareAudioManager) BluetoothScoAvailableOffCall() bool { return m.scoOffCall }

func (m *SoftwareAudioManager) BluetoothScoOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoOn
}

func (m *SoftwareAudioManager) SetBluetoothScoOn(on bool) {
	m.update(func() bool {
		m.calls.ScoSets++
		changed := m.scoOn != on
		m.scoOn = on
		return changed
	})
}

func (m *SoftwareAudioManager) StartBluetoothSco() {
	m.mu.Lock()
	m.calls.ScoStarts++
	m.mu.Unlock()
}

func (m *SoftwareAudioManager) StopBluetoothSco() {
	m.mu.Lock()
	m.calls.ScoStops++
	m.mu.Unlock()
}

func (m *SoftwareAudioManager) SpeakerphoneOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakerOn
}

func (m *SoftwareAudioManager) SetSpeakerphoneOn(on bool) {
	m.update(func() bool {
		m.calls.SpeakerphoneSet++
		changed := m.speakerOn != on
		m.speakerOn = on
		return changed
	})
}

// Calls returns the call counters.
func (m *SoftwareAudioManager) Calls() ManagerCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *SoftwareAudioManager) update(apply func() bool) {
	m.mu.Lock()
	changed := apply()
	change := RouteChange{Speakerphone: m.speakerOn, BluetoothSco: m.scoOn}
	listeners := m.listeners
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(change)
	}
}
