package source

import "time"

// State is the lifecycle position of a Handle.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "invalid"
}

// Transition describes one state change. Cause is set when the change
// was triggered by an error.
type Transition struct {
	Identity string
	From     State
	To       State
	Cause    error
	Attempt  int
	At       time.Time
}

// Observer is called synchronously on every transition. It must not
// block.
type Observer func(Transition)
