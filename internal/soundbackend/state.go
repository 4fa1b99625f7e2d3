package soundbackend

import (
	"fmt"
	"strings"
)

// StreamState is the lifecycle state of one engine.
type StreamState int32

const (
	StateStopped StreamState = iota
	StateStarting
	StateRunning
	StatePaused
	StateShuttingDown
	// StateTerminated is final. The hardware stream has been released.
	StateTerminated
)

func (s StreamState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText lets the state appear by name in JSON payloads.
func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is a lifecycle request passed to SetState.
type Action int

const (
	ActionStart Action = iota
	ActionPause
	ActionStop
	ActionShutdown
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionPause:
		return "pause"
	case ActionStop:
		return "stop"
	case ActionShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction parses the name of an action, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return ActionStart, nil
	case "pause":
		return ActionPause, nil
	case "stop":
		return ActionStop, nil
	case "shutdown":
		return ActionShutdown, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}
