package command

import (
	"context"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrUnknownOp is returned by a Planner for operations it does not support.
const ErrUnknownOp = sentinel.Error("unknown command operation")

// ErrMissingFact is returned when an operation's plan requires a fact the
// caller did not provide.
const ErrMissingFact = sentinel.Error("missing fact for command plan")

// Op is a logical operation against the server utilities.
type Op string

const (
	// OpInitStorage creates and initializes the data directory.
	OpInitStorage Op = "init-storage"

	// OpCheckReady probes whether the server accepts connections.
	OpCheckReady Op = "check-ready"

	// OpStopServer requests a fast shutdown through the control utility.
	OpStopServer Op = "stop-server"

	// OpServerArgs plans the long-running server process itself. The
	// resulting invocation is spawned and supervised, not run to completion.
	OpServerArgs Op = "server-args"
)

// Facts carries everything a Planner may need to build an invocation.
// Operations use the subset they need.
type Facts struct {
	// Binaries maps logical utility names to absolute paths, as recorded by
	// the installation store.
	Binaries map[string]string

	// DataDir is the instance's data directory.
	DataDir string

	// Host and Port are the listen address of the instance.
	Host string
	Port int

	// Superuser is the name of the administrative role.
	Superuser string

	// PasswordFile is the path of the file holding the superuser password,
	// consumed by storage initialization.
	PasswordFile string

	// Locale overrides the storage locale when non-empty.
	Locale string
}

// Invocation is one concrete program execution.
type Invocation struct {
	Binary string
	Dir    string
	Args   []string
	Env    []string
}

// Result is the outcome of a completed invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Planner builds invocations from logical operations. Implementations must
// be safe for concurrent use.
type Planner interface {
	Plan(op Op, facts Facts) (Invocation, error)
}

// Runner executes invocations to completion. A non-zero exit is reported in
// the Result, not as an error; errors mean the program could not be run at
// all.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}
