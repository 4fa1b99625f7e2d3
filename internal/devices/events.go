package devices

import (
	"fmt"
	"strings"
)

// HeadsetPlugEvent reports a wired headset being plugged in or pulled out.
type HeadsetPlugEvent struct {
	// State is true when the headset is plugged in.
	State      bool   `json:"state"`
	Name       string `json:"name"`
	Microphone bool   `json:"microphone"`
}

// ScoState is the state of the Bluetooth SCO audio link.
type ScoState int

const (
	ScoDisconnected ScoState = iota
	ScoConnected
	ScoConnecting
	ScoError
)

func (s ScoState) String() string {
	switch s {
	case ScoDisconnected:
		return "disconnected"
	case ScoConnected:
		return "connected"
	case ScoConnecting:
		return "connecting"
	case ScoError:
		return "error"
	default:
		return fmt.Sprintf("sco(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s ScoState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *ScoState) UnmarshalText(text []byte) error {
	v, err := ParseScoState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseScoState parses a state name.
func ParseScoState(str string) (ScoState, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "disconnected":
		return ScoDisconnected, nil
	case "connected":
		return ScoConnected, nil
	case "connecting":
		return ScoConnecting, nil
	case "error":
		return ScoError, nil
	default:
		return ScoDisconnected, fmt.Errorf("unknown sco state %q", str)
	}
}

// ScoStateEvent reports an SCO link state change.
type ScoStateEvent struct {
	Previous ScoState `json:"previous"`
	State    ScoState `json:"state"`
}
