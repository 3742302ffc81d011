package pgenv

import (
	"context"

	"github.com/giantswarm/pgenv/internal/store"
)

// InstalledVersion describes one completed installation: its version,
// platform, install location, and utility binary paths.
type InstalledVersion = store.InstalledVersion

// Environment provisions server installations and creates instances bound to
// them.
//
// Callers typically follow this lifecycle ordering:
//
//	NewEnvironment → Install → NewInstance... → Shutdown
//
// Install is idempotent and safe to call from parallel tests; concurrent
// installs of the same version share one download.
type Environment interface {
	// Install makes sure a release matching the version requirement is
	// installed for this platform and returns its record. The requirement
	// may be exact ("16.4.0"), partial ("16"), a range (">=15 <17"), or
	// "latest" (also the meaning of the empty string).
	//
	// Returns ErrVersionNotFound when the catalog has no matching release,
	// ErrUnsupportedPlatform when it has nothing for this platform, and
	// ErrChecksumMismatch when the downloaded archive fails verification.
	Install(ctx context.Context, version string) (InstalledVersion, error)

	// NewInstance creates an instance bound to an installed version. The
	// instance starts life Stopped with an uninitialized data directory;
	// call Initialize and Start to bring it up.
	//
	// Returns ErrShuttingDown after Shutdown has begun.
	NewInstance(installed InstalledVersion, opts ...InstanceOption) (Instance, error)

	// Installed lists all completed installations, sorted by version.
	Installed() ([]InstalledVersion, error)

	// Uninstall removes an installation from disk. Returns ErrVersionInUse
	// while any live instance is still bound to it.
	Uninstall(installed InstalledVersion) error

	// Shutdown closes all live instances in parallel and releases the
	// environment's resources. Safe to call more than once.
	Shutdown(ctx context.Context) error
}

// Instance is one embedded server with its own data directory and listen
// port.
//
// Lifecycle methods are serialized per instance: an operation requested
// while another transition is in flight fails fast with
// InvalidTransitionError rather than queueing.
type Instance interface {
	// ID returns a unique identifier for this instance.
	ID() string

	// State returns the current lifecycle state.
	State() State

	// Initialize creates and initializes the data directory. Calling it on
	// an already initialized instance is a no-op. Requires the Stopped
	// state.
	Initialize(ctx context.Context) error

	// Start launches the server process and waits until it accepts
	// connections. Requires an initialized instance in the Stopped state.
	// On readiness timeout or early process death the process is terminated
	// and the instance is Failed; canceling ctx terminates the process and
	// returns the instance to Stopped.
	Start(ctx context.Context) error

	// Stop gracefully terminates the server process, escalating to a kill
	// after the grace period. Stopping an already stopped instance is a
	// no-op success.
	Stop(ctx context.Context) error

	// Close stops the instance and, under the DataRemove policy, deletes
	// its data directory. Unlike the other lifecycle methods it waits for
	// an in-flight transition to finish instead of failing fast. Using
	// defer inst.Close() is safe; later lifecycle calls return
	// ErrInstanceClosed.
	Close() error

	// Port returns the bound listen port, or 0 before the first successful
	// Start.
	Port() int

	// DataDir returns the server's data directory.
	DataDir() string

	// Superuser returns the administrative role name.
	Superuser() string

	// Password returns the superuser password, generated at instance
	// creation when none was configured.
	Password() string

	// URL returns a connection URL for the given database on this instance.
	// Only meaningful while the instance is Ready.
	URL(database string) string
}
