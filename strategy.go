package pgenv

import "github.com/giantswarm/pgenv/internal/core"

// DataPolicy controls what happens to an instance's data directory when the
// instance is closed.
type DataPolicy = core.DataPolicy

const (
	// DataRemove deletes the data directory on Close (the default).
	DataRemove = core.DataRemove

	// DataKeep leaves the data directory in place so a later instance can be
	// pointed at the same data.
	DataKeep = core.DataKeep
)

// State is an instance's position in the lifecycle state machine. See
// Instance.State.
type State = core.State

// Lifecycle states, in transition order. Failed is terminal.
const (
	StateStopped      = core.StateStopped
	StateInitializing = core.StateInitializing
	StateStarting     = core.StateStarting
	StateReady        = core.StateReady
	StateStopping     = core.StateStopping
	StateFailed       = core.StateFailed
)
