package hal

import "strings"

// DeviceType classifies an audio endpoint.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DeviceBuiltinEarpiece
	DeviceBuiltinSpeaker
	DeviceBuiltinMic
	DeviceWiredHeadset
	DeviceWiredHeadphones
	DeviceUSBHeadset
	DeviceUSBDevice
	DeviceBluetoothSCO
	DeviceBluetoothA2DP
	DeviceLineAnalog
	DeviceHDMI
	DeviceTelephony
)

var deviceTypeNames = map[DeviceType]string{
	DeviceUnknown:         "unknown",
	DeviceBuiltinEarpiece: "builtin_earpiece",
	DeviceBuiltinSpeaker:  "builtin_speaker",
	DeviceBuiltinMic:      "builtin_mic",
	DeviceWiredHeadset:    "wired_headset",
	DeviceWiredHeadphones: "wired_headphones",
	DeviceUSBHeadset:      "usb_headset",
	DeviceUSBDevice:       "usb_device",
	DeviceBluetoothSCO:    "bluetooth_sco",
	DeviceBluetoothA2DP:   "bluetooth_a2dp",
	DeviceLineAnalog:      "line_analog",
	DeviceHDMI:            "hdmi",
	DeviceTelephony:       "telephony",
}

func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return deviceTypeNames[DeviceUnknown]
}

// ParseDeviceType is the inverse of DeviceType.String.
func ParseDeviceType(s string) DeviceType {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range deviceTypeNames {
		if name == s {
			return t
		}
	}
	return DeviceUnknown
}

// DeviceInfo describes one endpoint reported by a backend.
type DeviceInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      DeviceType `json:"-"`
	TypeName  string     `json:"type"`
	Direction Direction  `json:"-"`
	IsDefault bool       `json:"is_default"`
}

// NewDeviceInfo fills TypeName from Type.
func NewDeviceInfo(id, name string, t DeviceType, dir Direction, isDefault bool) DeviceInfo {
	return DeviceInfo{ID: id, Name: name, Type: t, TypeName: t.String(), Direction: dir, IsDefault: isDefault}
}

// nameHints is checked in order; the first substring match wins.
var nameHints = []struct {
	substr string
	output DeviceType
	input  DeviceType
}{
	{"hands-free", DeviceBluetoothSCO, DeviceBluetoothSCO},
	{"handsfree", DeviceBluetoothSCO, DeviceBluetoothSCO},
	{"hfp", DeviceBluetoothSCO, DeviceBluetoothSCO},
	{"hsp", DeviceBluetoothSCO, DeviceBluetoothSCO},
	{"a2dp", DeviceBluetoothA2DP, DeviceBluetoothSCO},
	{"bluez", DeviceBluetoothA2DP, DeviceBluetoothSCO},
	{"bluetooth", DeviceBluetoothA2DP, DeviceBluetoothSCO},
	{"usb", DeviceUSBHeadset, DeviceUSBHeadset},
	{"hdmi", DeviceHDMI, DeviceUnknown},
	{"displayport", DeviceHDMI, DeviceUnknown},
	{"headset", DeviceWiredHeadset, DeviceWiredHeadset},
	{"headphone", DeviceWiredHeadphones, DeviceWiredHeadset},
	{"line", DeviceLineAnalog, DeviceLineAnalog},
	{"earpiece", DeviceBuiltinEarpiece, DeviceBuiltinMic},
	{"receiver", DeviceBuiltinEarpiece, DeviceBuiltinMic},
	{"modem", DeviceTelephony, DeviceTelephony},
	{"telephony", DeviceTelephony, DeviceTelephony},
	{"speaker", DeviceBuiltinSpeaker, DeviceBuiltinMic},
	{"mic", DeviceBuiltinMic, DeviceBuiltinMic},
}

// ClassifyByName guesses the device type from a driver-reported name.
// Desktop backends do not report endpoint types, so names are all we have.
func ClassifyByName(name string, dir Direction) DeviceType {
	lower := strings.ToLower(name)
	for _, hint := range nameHints {
		if !strings.Contains(lower, hint.substr) {
			continue
		}
		if dir == Input {
			return hint.input
		}
		return hint.output
	}
	if dir == Input {
		return DeviceBuiltinMic
	}
	return DeviceBuiltinSpeaker
}
