package devices

import (
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/soundbackend/internal/errors"
	"github.com/tphakala/soundbackend/internal/hal"
	"github.com/tphakala/soundbackend/internal/logger"
)

// DefaultCacheTTL is how long a device listing is reused.
const DefaultCacheTTL = 2 * time.Second

// Lister is the part of hal.Backend the Enumerator needs.
type Lister interface {
	Devices(dir hal.Direction) ([]hal.DeviceInfo, error)
}

// Enumerator lists and classifies the endpoints of a hardware backend. It
// holds no routing policy; listings are cached for a short TTL so that
// bursts of queries hit the driver once.
type Enumerator struct {
	lister Lister
	cache  *cache.Cache
	log    logger.Logger
}

// NewEnumerator creates an enumerator. A non-positive ttl disables caching.
func NewEnumerator(lister Lister, ttl time.Duration) *Enumerator {
	e := &Enumerator{
		lister: lister,
		log:    GetLogger().Module("enumerator"),
	}
	if ttl > 0 {
		e.cache = cache.New(ttl, ttl*2)
	}
	return e
}

// Devices returns the endpoints for dir.
func (e *Enumerator) Devices(dir hal.Direction) ([]hal.DeviceInfo, error) {
	key := dir.String()
	if e.cache != nil {
		if cached, found := e.cache.Get(key); found {
			if list, ok := cached.([]hal.DeviceInfo); ok {
				return slices.Clone(list), nil
			}
		}
	}

	list, err := e.lister.Devices(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("devices.enumerator").
			Category(errors.CategoryAudio).
			Context("direction", key).
			Build()
	}
	e.log.Debug("devices listed", logger.String("direction", key), logger.Int("count", len(list)))

	if e.cache != nil {
		e.cache.Set(key, slices.Clone(list), cache.DefaultExpiration)
	}
	return list, nil
}

// Refresh drops cached listings.
func (e *Enumerator) Refresh() {
	if e.cache != nil {
		e.cache.Flush()
	}
}

// ConnectedKinds reports whether a wired or USB headset and whether a
// Bluetooth device is present in dir.
func (e *Enumerator) ConnectedKinds(dir hal.Direction) (headset, bluetooth bool, err error) {
	list, err := e.Devices(dir)
	if err != nil {
		return false, false, err
	}
	for _, d := range list {
		switch d.Type {
		case hal.DeviceWiredHeadphones, hal.DeviceWiredHeadset, hal.DeviceUSBHeadset:
			headset = true
		case hal.DeviceBluetoothA2DP, hal.DeviceBluetoothSCO:
			bluetooth = true
		}
	}
	return headset, bluetooth, nil
}

// AvailableOutputs returns the output endpoints without telephony ones.
func (e *Enumerator) AvailableOutputs() ([]hal.DeviceInfo, error) {
	list, err := e.Devices(hal.Output)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(list, func(d hal.DeviceInfo) bool {
		return d.Type == hal.DeviceTelephony
	}), nil
}

// FindByType returns the first endpoint of type t in dir, nil if none.
func (e *Enumerator) FindByType(dir hal.Direction, t hal.DeviceType) (*hal.DeviceInfo, error) {
	return e.find(dir, func(d hal.DeviceInfo) bool { return d.Type == t })
}

// FindByID returns the endpoint with id in dir, nil if none.
func (e *Enumerator) FindByID(dir hal.Direction, id string) (*hal.DeviceInfo, error) {
	return e.find(dir, func(d hal.DeviceInfo) bool { return d.ID == id })
}

// DefaultOutput returns the output the platform uses when nothing is
// preferred, nil if none is flagged.
func (e *Enumerator) DefaultOutput() (*hal.DeviceInfo, error) {
	return e.find(hal.Output, func(d hal.DeviceInfo) bool { return d.IsDefault })
}

// DefaultMic returns the built-in microphone, nil if there is none.
func (e *Enumerator) DefaultMic() (*hal.DeviceInfo, error) {
	return e.FindByType(hal.Input, hal.DeviceBuiltinMic)
}

// InputFor picks the microphone that belongs to output: a Bluetooth mic for
// a Bluetooth output, the headset mic for a wired headset, and the default
// mic otherwise or when no match exists.
func (e *Enumerator) InputFor(output hal.DeviceInfo) (*hal.DeviceInfo, error) {
	var match func(hal.DeviceInfo) bool
	switch {
	case IsBluetooth(output):
		match = IsBluetooth
	case IsWiredHeadset(output):
		match = IsWiredHeadset
	}
	if match != nil {
		dev, err := e.find(hal.Input, match)
		if err != nil || dev != nil {
			return dev, err
		}
	}
	return e.DefaultMic()
}

func (e *Enumerator) find(dir hal.Direction, match func(hal.DeviceInfo) bool) (*hal.DeviceInfo, error) {
	list, err := e.Devices(dir)
	if err != nil {
		return nil, err
	}
	if i := slices.IndexFunc(list, match); i >= 0 {
		d := list[i]
		return &d, nil
	}
	return nil, nil
}

// IsBluetooth reports whether d is a Bluetooth A2DP or SCO endpoint.
func IsBluetooth(d hal.DeviceInfo) bool {
	return d.Type == hal.DeviceBluetoothA2DP || d.Type == hal.DeviceBluetoothSCO
}

// IsWiredHeadset reports whether d is a wired headset.
func IsWiredHeadset(d hal.DeviceInfo) bool {
	return d.Type == hal.DeviceWiredHeadset
}

// TypeDisplayName returns a short readable name for a device type, empty for
// types without one.
func TypeDisplayName(t hal.DeviceType) string {
	switch t {
	case hal.DeviceBluetoothSCO:
		return "Bluetooth"
	case hal.DeviceBluetoothA2DP:
		return "Bluetooth A2DP"
	case hal.DeviceBuiltinMic:
		return "Microphone"
	case hal.DeviceBuiltinEarpiece:
		return "Earpiece"
	case hal.DeviceBuiltinSpeaker:
		return "Speaker"
	case hal.DeviceTelephony:
		return "Telephone"
	case hal.DeviceWiredHeadphones:
		return "Headphone"
	case hal.DeviceWiredHeadset:
		return "Headset"
	default:
		return ""
	}
}

// KindOf maps an output endpoint to the logical kind it represents.
func KindOf(d hal.DeviceInfo) Kind {
	switch d.Type {
	case hal.DeviceBuiltinSpeaker:
		return KindInternalSpeaker
	case hal.DeviceWiredHeadset, hal.DeviceWiredHeadphones, hal.DeviceUSBHeadset:
		return KindWiredHeadset
	case hal.DeviceBluetoothSCO, hal.DeviceBluetoothA2DP:
		return KindBluetoothHeadset
	default:
		return KindNormal
	}
}
