package core

import "fmt"

// State is an instance's position in the lifecycle state machine.
//
// The legal transitions are:
//
//	Stopped -> Initializing -> Stopped (storage initialized)
//	Stopped -> Starting -> Ready -> Stopping -> Stopped
//
// Failed is entered when the server process dies unexpectedly or never
// becomes ready; it is terminal apart from resource cleanup via Stop/Close.
type State int32

const (
	StateStopped State = iota
	StateInitializing
	StateStarting
	StateReady
	StateStopping
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateInitializing:
		return "initializing"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// InvalidTransitionError reports a lifecycle operation requested from a state
// that does not permit it, including an operation requested while another
// transition is still in flight.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
