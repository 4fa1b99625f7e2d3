// Package devices tracks which audio endpoints are available and applies the
// routing side effects that follow from connectivity events.
package devices

import (
	"fmt"
	"strings"
)

// Kind is a logical output device as seen by the voice client.
type Kind int

const (
	// KindNormal is the built-in earpiece and microphone. Always available.
	KindNormal Kind = iota
	KindInternalSpeaker
	KindWiredHeadset
	KindBluetoothHeadset
)

// Kinds lists every logical device kind in table order.
var Kinds = []Kind{KindNormal, KindInternalSpeaker, KindWiredHeadset, KindBluetoothHeadset}

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindInternalSpeaker:
		return "internal_speaker"
	case KindWiredHeadset:
		return "wired_headset"
	case KindBluetoothHeadset:
		return "bluetooth_headset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DisplayName returns the user-facing name. Unknown kinds fall back to the
// earpiece name.
func (k Kind) DisplayName() string {
	switch k {
	case KindInternalSpeaker:
		return "Speaker"
	case KindWiredHeadset:
		return "Cable Headset"
	case KindBluetoothHeadset:
		return "Bluetooth Headset"
	default:
		return "Earpiece"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name or alias.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind is the inverse of Kind.String. Short aliases such as "speaker"
// and "bluetooth" are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "earpiece":
		return KindNormal, nil
	case "internal_speaker", "speaker":
		return KindInternalSpeaker, nil
	case "wired_headset", "headset", "wired":
		return KindWiredHeadset, nil
	case "bluetooth_headset", "bluetooth", "bt":
		return KindBluetoothHeadset, nil
	default:
		return 0, fmt.Errorf("unknown device kind %q", s)
	}
}

func (k Kind) valid() bool {
	return k >= KindNormal && k <= KindBluetoothHeadset
}
