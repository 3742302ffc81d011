package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

const (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = sentinel.Error("poll interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive poll timeout.
	ErrTimeoutNotPositive = sentinel.Error("poll timeout must be positive")

	// ErrProcessExited indicates the supervised process exited before the
	// readiness check ever passed.
	ErrProcessExited = sentinel.Error("process exited before becoming ready")
)

// ReadinessCheck probes once whether the server is accepting work. The
// context is canceled on timeout or caller cancellation so a probe in flight
// (a TCP dial, a gateway command) returns promptly. attempt is 1-based.
// Returning a non-nil error aborts the wait.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	Interval      time.Duration   // delay between probes
	Timeout       time.Duration   // overall budget
	Name          string          // process name for error context
	Port          int             // listen port for log context
	Logger        *slog.Logger    // nil means slog.Default()
	ProcessExited <-chan struct{} // optional; closed when the process died
}

func (cfg WaitReadyConfig) validate() error {
	switch {
	case cfg.Name == "":
		return sentinel.Error("wait ready: name must not be empty")
	case cfg.Interval <= 0:
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrIntervalNotPositive)
	case cfg.Timeout <= 0:
		return fmt.Errorf("wait for %s: %w", cfg.Name, ErrTimeoutNotPositive)
	}
	return nil
}

// WaitReady probes check every Interval until it reports ready, a probe
// fails, the process dies, or Timeout elapses. The first probe runs
// immediately. A closed ProcessExited channel short-circuits the wait so a
// server that dies on startup (a port bind failure, a bad data directory)
// does not cost the caller the whole budget.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// The condition runs sequentially, so attempt needs no synchronization.
	attempt := 0
	condition := func(pollCtx context.Context) (bool, error) {
		if exitedEarly(cfg.ProcessExited) {
			return false, fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
		}
		attempt++
		ready, err := check(pollCtx, attempt)
		if err != nil {
			return false, err
		}
		if ready {
			log.Debug("readiness probe passed", "name", cfg.Name, "port", cfg.Port, "attempt", attempt)
		}
		return ready, nil
	}

	if err := wait.PollUntilContextTimeout(ctx, cfg.Interval, cfg.Timeout, true, condition); err != nil {
		return fmt.Errorf("wait for %s readiness on port %d: %w", cfg.Name, cfg.Port, err)
	}
	return nil
}

// exitedEarly reports whether ch is non-nil and already closed.
func exitedEarly(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
