package connection

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for edges outside the transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// State represents the handover connection state.
type State uint8

const (
	// StateNone indicates no session.
	StateNone State = iota

	// StateListening indicates an inbound accept is pending.
	StateListening

	// StateConnecting indicates an outbound dial is in progress.
	StateConnecting

	// StateConnected indicates an established peer session.
	StateConnected
)

// States lists every state in declaration order.
var States = []State{StateNone, StateListening, StateConnecting, StateConnected}

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateListening:
		return "LISTENING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is one of the declared states.
func (s State) Valid() bool {
	return s <= StateConnected
}

// validTransitions is the complete edge set. Listening→Connecting is the
// accept/connect race where the initiator wins.
var validTransitions = map[State][]State{
	StateNone: {
		StateListening,
		StateConnecting,
	},
	StateListening: {
		StateConnecting,
		StateConnected,
		StateNone,
	},
	StateConnecting: {
		StateConnected,
		StateNone,
	},
	StateConnected: {
		StateNone,
	},
}

// CanTransition reports whether from→to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, target := range validTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
