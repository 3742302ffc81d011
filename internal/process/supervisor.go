package process

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a supervisor whose
// process is already running. Callers must Stop before starting again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when Start is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when Start is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyWorkDir is returned when Start is called with an empty working directory.
const ErrEmptyWorkDir = sentinel.Error("working directory must not be empty")

// DefaultStopTimeout is the fallback overall timeout for stopping a process
// when the caller did not configure one.
const DefaultStopTimeout = 10 * time.Second

// DefaultGracePeriod is the fallback time between SIGTERM and SIGKILL
// escalation when the caller did not configure a grace period.
const DefaultGracePeriod = 5 * time.Second

// Supervisor owns the lifecycle of one child process. It redirects the
// child's stdout/stderr to log files in the working directory, runs exactly
// one cmd.Wait goroutine, and implements the SIGTERM-then-SIGKILL stop
// sequence.
//
// Supervisor is not safe for concurrent use. Callers must serialize access to
// all methods; in practice the owning Instance's transition mutex does this.
type Supervisor struct {
	cmd      *exec.Cmd
	waitDone <-chan error    // receives the cmd.Wait result; consumed once by Stop
	exited   <-chan struct{} // closed when the process exits; readable by many goroutines
	stdout   *os.File
	stderr   *os.File

	name  string // process name for log file naming and error context
	log   *slog.Logger
	grace time.Duration // SIGTERM-to-SIGKILL escalation delay; zero uses DefaultGracePeriod
}

// NewSupervisor creates a Supervisor for a process with the given name. The
// grace period bounds how long Stop waits after SIGTERM before escalating to
// SIGKILL; zero falls back to DefaultGracePeriod. If logger is nil,
// slog.Default() is used. Panics if name is empty, since an empty name
// produces useless log file names and error messages.
func NewSupervisor(name string, logger *slog.Logger, grace time.Duration) *Supervisor {
	if name == "" {
		panic("pgenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{name: name, log: logger, grace: grace}
}

// Running reports whether the process has been started and not yet stopped.
func (s *Supervisor) Running() bool {
	return s.cmd != nil
}

// Pid returns the child's process id, or 0 if no process is running.
func (s *Supervisor) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited returns a channel that is closed when the process exits. It is safe
// to select on from any number of goroutines. Returns nil if the process has
// not been started or has already been stopped.
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}

// StdoutPath returns the path the child's stdout is redirected to, or ""
// before the first Start.
func (s *Supervisor) StdoutPath() string {
	if s.stdout == nil {
		return ""
	}
	return s.stdout.Name()
}

// StderrPath returns the path the child's stderr is redirected to, or ""
// before the first Start.
func (s *Supervisor) StderrPath() string {
	if s.stderr == nil {
		return ""
	}
	return s.stderr.Name()
}

// Start launches cmd with its working directory set to workDir and its output
// redirected to <name>-stdout.log / <name>-stderr.log inside workDir. The cmd
// must already have Path, Args, and Env set.
//
// A single goroutine calling cmd.Wait is started here so that exactly one
// Wait call is made per process; its result channel is consumed by Stop, and
// a broadcast channel (see Exited) is closed on exit for crash observation.
//
// Returns ErrAlreadyStarted if a process is already running.
func (s *Supervisor) Start(cmd *exec.Cmd, workDir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if workDir == "" {
		return ErrEmptyWorkDir
	}
	if s.cmd != nil {
		return ErrAlreadyStarted
	}

	stdout, err := os.Create(filepath.Join(workDir, s.name+"-stdout.log"))
	if err != nil {
		return fmt.Errorf("create %s stdout log: %w", s.name, err)
	}
	stderr, err := os.Create(filepath.Join(workDir, s.name+"-stderr.log"))
	if err != nil {
		_ = stdout.Close()
		return fmt.Errorf("create %s stderr log: %w", s.name, err)
	}

	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return fmt.Errorf("start %s process: %w", s.name, err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.stderr = stderr

	// cmd.Wait must be called exactly once per started process; a second call
	// is undefined behavior. Starting the goroutine here guarantees that
	// invariant and gives Stop a done channel to consume.
	//
	// Two channels: done (buffered 1) carries the Wait error to Stop; exited
	// (closed) is a broadcast readable by readiness pollers and crash watchers.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	s.waitDone = done
	s.exited = exited

	return nil
}

// Stop terminates the process: SIGTERM, wait up to the grace period, then
// SIGKILL, bounded overall by timeout. After Stop returns, Running reports
// false regardless of outcome, because the process is no longer in a
// known-running state. Safe to call when no process is running; returns nil
// immediately in that case.
func (s *Supervisor) Stop(timeout time.Duration) error {
	if s.cmd == nil || s.cmd.Process == nil {
		s.reset()
		return nil
	}
	pid := s.cmd.Process.Pid
	grace := s.grace
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	err := stopWithDone(s.cmd, s.waitDone, timeout, grace, s.name)
	if err != nil {
		s.log.Warn("process stop failed; process may be orphaned",
			"process", s.name, "pid", pid, "error", err)
	}
	s.reset()
	return err
}

// Close closes the redirected log file handles. If the process is still
// running, Close stops it first using DefaultStopTimeout as a safety net;
// callers should normally Stop before Close.
func (s *Supervisor) Close() {
	if s.cmd != nil {
		s.log.Warn("process.Close called without Stop; stopping automatically",
			"process", s.name)
		if err := s.Stop(DefaultStopTimeout); err != nil {
			s.log.Warn("auto-stop during Close failed", "process", s.name, "error", err)
		}
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
		s.stdout = nil
	}
	if s.stderr != nil {
		_ = s.stderr.Close()
		s.stderr = nil
	}
}

// reset clears the process references so Running reports false.
func (s *Supervisor) reset() {
	s.cmd = nil
	s.waitDone = nil
	s.exited = nil
}
