package devices

import "github.com/tphakala/soundbackend/internal/hal"

// Sync seeds the router from the outputs the enumerator currently sees.
// Only headset and Bluetooth availability follow hardware; the speaker is a
// user choice and is left alone.
func Sync(r *Router, e *Enumerator) error {
	e.Refresh()
	headset, bluetooth, err := e.ConnectedKinds(hal.Output)
	if err != nil {
		return err
	}
	if _, err := r.SetAvailable(KindWiredHeadset, headset); err != nil {
		return err
	}
	r.OnBluetoothHeadsetConnectStatusChange(bluetooth)
	return nil
}
