package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Compile-time check that ExecRunner satisfies Runner.
var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs invocations through os/exec. Safe for concurrent use.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner creates an ExecRunner. If logger is nil, slog.Default() is
// used.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{log: logger}
}

// Run implements Runner. The invocation runs to completion or until ctx is
// done; a non-zero exit lands in the Result, while spawn failures are
// returned as errors.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Binary == "" {
		return Result{}, fmt.Errorf("invocation has no binary")
	}

	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("running command", "binary", inv.Binary, "args", inv.Args)

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Spawn failure: there is no process state to report.
			return Result{}, fmt.Errorf("run %s: %w", inv.Binary, err)
		}
	}

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("run %s: %w", inv.Binary, ctx.Err())
	}
	return result, nil
}
