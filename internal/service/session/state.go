package session

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateConnecting - Session created, snapshot not yet loaded.
	StateConnecting State = iota
	// StateActive - Session is live, accepting viewers and mutations.
	StateActive
	// StateEnded - Session reached its terminal state.
	StateEnded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateEnded
}

// Errors for session operations.
var (
	ErrSessionEnded   = errors.New("session has ended")
	ErrUnknownSession = errors.New("no session exists for this event")
)
