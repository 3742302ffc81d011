package command

import (
	"fmt"
	"strconv"
)

// Compile-time check that DefaultPlanner satisfies Planner.
var _ Planner = (*DefaultPlanner)(nil)

// DefaultPlanner plans invocations for the stock server utilities. The
// argument shapes are stable across all currently supported server versions;
// callers needing version-specific arguments supply their own Planner.
type DefaultPlanner struct{}

// NewDefaultPlanner returns the stock planner.
func NewDefaultPlanner() *DefaultPlanner { return &DefaultPlanner{} }

// Plan implements Planner.
func (p *DefaultPlanner) Plan(op Op, facts Facts) (Invocation, error) {
	switch op {
	case OpInitStorage:
		return p.planInitStorage(facts)
	case OpCheckReady:
		return p.planCheckReady(facts)
	case OpStopServer:
		return p.planStopServer(facts)
	case OpServerArgs:
		return p.planServerArgs(facts)
	default:
		return Invocation{}, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
}

func (p *DefaultPlanner) planInitStorage(facts Facts) (Invocation, error) {
	binary, err := binaryFor(facts, "initdb")
	if err != nil {
		return Invocation{}, err
	}
	if err := requireFacts(map[string]string{
		"DataDir":      facts.DataDir,
		"Superuser":    facts.Superuser,
		"PasswordFile": facts.PasswordFile,
	}); err != nil {
		return Invocation{}, err
	}

	args := []string{
		"--pgdata", facts.DataDir,
		"--username", facts.Superuser,
		"--auth", "password",
		"--pwfile", facts.PasswordFile,
		"--encoding", "UTF8",
	}
	if facts.Locale != "" {
		args = append(args, "--locale", facts.Locale)
	}
	return Invocation{Binary: binary, Args: args}, nil
}

func (p *DefaultPlanner) planCheckReady(facts Facts) (Invocation, error) {
	binary, err := binaryFor(facts, "pg_isready")
	if err != nil {
		return Invocation{}, err
	}
	if facts.Host == "" || facts.Port == 0 {
		return Invocation{}, fmt.Errorf("%w: Host and Port", ErrMissingFact)
	}

	args := []string{
		"--host", facts.Host,
		"--port", strconv.Itoa(facts.Port),
		"--timeout", "1",
	}
	return Invocation{Binary: binary, Args: args}, nil
}

func (p *DefaultPlanner) planStopServer(facts Facts) (Invocation, error) {
	binary, err := binaryFor(facts, "pg_ctl")
	if err != nil {
		return Invocation{}, err
	}
	if facts.DataDir == "" {
		return Invocation{}, fmt.Errorf("%w: DataDir", ErrMissingFact)
	}

	args := []string{
		"stop",
		"--pgdata", facts.DataDir,
		"--mode", "fast",
		"--wait",
	}
	return Invocation{Binary: binary, Args: args}, nil
}

func (p *DefaultPlanner) planServerArgs(facts Facts) (Invocation, error) {
	binary, err := binaryFor(facts, "postgres")
	if err != nil {
		return Invocation{}, err
	}
	if err := requireFacts(map[string]string{
		"DataDir": facts.DataDir,
		"Host":    facts.Host,
	}); err != nil {
		return Invocation{}, err
	}
	if facts.Port == 0 {
		return Invocation{}, fmt.Errorf("%w: Port", ErrMissingFact)
	}

	// The socket directory is pinned to the data directory so instances never
	// collide in the default system socket location.
	args := []string{
		"-D", facts.DataDir,
		"-p", strconv.Itoa(facts.Port),
		"-h", facts.Host,
		"-k", facts.DataDir,
	}
	return Invocation{Binary: binary, Args: args}, nil
}

func binaryFor(facts Facts, name string) (string, error) {
	binary, ok := facts.Binaries[name]
	if !ok || binary == "" {
		return "", fmt.Errorf("%w: binary %q", ErrMissingFact, name)
	}
	return binary, nil
}

func requireFacts(named map[string]string) error {
	for name, value := range named {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingFact, name)
		}
	}
	return nil
}
