package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/pgenv/internal/command"
	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/netutil"
	"github.com/giantswarm/pgenv/internal/process"
	"github.com/giantswarm/pgenv/internal/store"
)

// serverProcessName names the supervised server process in log files and
// error messages.
const serverProcessName = "postgres"

// Instance is one embedded server: a data directory, at most one supervised
// server process, and the state machine tying them together.
//
// Synchronization strategy:
//   - state uses an atomic for lock-free reads (State, the crash watcher).
//   - mu serializes lifecycle transitions. Operations use TryLock so a
//     transition requested while another is in flight fails fast with
//     InvalidTransitionError instead of queueing behind it.
//   - sup, port and portClaimed are only accessed under mu.
type Instance struct {
	cfg InstanceConfig

	id       string
	rootDir  string
	dataDir  string
	pwfile   string
	password string

	installed store.InstalledVersion
	planner   command.Planner
	runner    command.Runner
	probe     ReadinessProbe
	ports     *netutil.PortRegistry
	onClose   func(*Instance)

	state       atomic.Int32
	initialized atomic.Bool
	// boundPort is the port published once allocated, for lock-free reads.
	boundPort atomic.Int32

	mu          sync.Mutex
	sup         *process.Supervisor
	port        int
	portClaimed bool
	closed      bool

	log *slog.Logger
}

// NewInstanceParams holds the parameters for creating an Instance. All
// fields except OnClose are required.
type NewInstanceParams struct {
	ID        string
	RootDir   string
	Installed store.InstalledVersion
	Planner   command.Planner
	Runner    command.Runner
	Probe     ReadinessProbe
	Ports     *netutil.PortRegistry
	Config    InstanceConfig

	// OnClose is invoked once when the instance is closed, after its process
	// is stopped. Used by the Environment to drop its reference.
	OnClose func(*Instance)
}

// NewInstance creates an Instance from the given parameters. Panics on
// missing required parameters or an invalid config; these are programmer
// errors that should surface at construction time.
func NewInstance(params NewInstanceParams) *Instance {
	if params.ID == "" {
		panic("pgenv: instance id must not be empty")
	}
	if params.RootDir == "" {
		panic("pgenv: instance root dir must not be empty")
	}
	if err := params.Installed.Validate(); err != nil {
		panic(fmt.Sprintf("pgenv: invalid installed version: %v", err))
	}
	if params.Planner == nil || params.Runner == nil {
		panic("pgenv: instance planner and runner must not be nil")
	}
	if params.Probe == nil {
		panic("pgenv: instance readiness probe must not be nil")
	}
	if params.Ports == nil {
		panic("pgenv: instance port registry must not be nil")
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("pgenv: invalid instance config: %v", err))
	}

	password := params.Config.Password
	if password == "" {
		password = generatePassword()
	}

	return &Instance{
		cfg:       params.Config,
		id:        params.ID,
		rootDir:   params.RootDir,
		dataDir:   filepath.Join(params.RootDir, "data"),
		pwfile:    filepath.Join(params.RootDir, "pwfile"),
		password:  password,
		installed: params.Installed,
		planner:   params.Planner,
		runner:    params.Runner,
		probe:     params.Probe,
		ports:     params.Ports,
		onClose:   params.OnClose,
		log:       Logger().With("id", params.ID),
	}
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string { return i.id }

// DataDir returns the server's data directory.
func (i *Instance) DataDir() string { return i.dataDir }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// Initialized reports whether the data directory has been initialized.
func (i *Instance) Initialized() bool { return i.initialized.Load() }

// Port returns the bound listen port, or 0 before the first successful
// Start.
func (i *Instance) Port() int { return int(i.boundPort.Load()) }

// Superuser returns the administrative role name.
func (i *Instance) Superuser() string { return i.cfg.Superuser }

// Password returns the superuser password, generated at creation when none
// was configured.
func (i *Instance) Password() string { return i.password }

// URL returns a connection URL for the given database on this instance.
// Only meaningful while the instance is Ready.
func (i *Instance) URL(database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(i.cfg.Superuser, i.password),
		Host:   DefaultHost + ":" + strconv.Itoa(i.Port()),
		Path:   "/" + database,
	}
	return u.String()
}

// Version returns the installed version this instance is bound to.
func (i *Instance) Version() store.InstalledVersion { return i.installed }

// Initialize creates and initializes the data directory through the command
// gateway. Calling it on an already initialized instance is a no-op.
// Requires the Stopped state.
func (i *Instance) Initialize(ctx context.Context) error {
	if !i.mu.TryLock() {
		return &InvalidTransitionError{From: i.State(), To: StateInitializing}
	}
	defer i.mu.Unlock()

	if i.closed {
		return ErrInstanceClosed
	}
	if i.initialized.Load() {
		return nil
	}
	if s := i.State(); s != StateStopped {
		return &InvalidTransitionError{From: s, To: StateInitializing}
	}

	i.state.Store(int32(StateInitializing))
	// Initialization failures leave no server process behind, so the
	// instance always lands back in Stopped and may retry.
	defer i.state.Store(int32(StateStopped))

	if err := fileutil.EnsureDir(i.rootDir); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	if err := fileutil.AtomicWriteFile(i.pwfile, []byte(i.password+"\n"), 0o600); err != nil {
		return fmt.Errorf("%w: write password file: %v", ErrStorageInitFailed, err)
	}

	inv, err := i.planner.Plan(command.OpInitStorage, i.facts())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	i.log.Debug("initializing storage", "data_dir", i.dataDir)
	result, err := i.runner.Run(ctx, inv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exit code %d: %s",
			ErrStorageInitFailed, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	i.initialized.Store(true)
	i.log.Info("storage initialized", "data_dir", i.dataDir)
	return nil
}

// Start launches the server process and waits until it is ready. Requires an
// initialized instance in the Stopped state. On readiness timeout or early
// process death the child is terminated and the instance is Failed; if ctx
// is canceled the child is terminated and the instance returns to Stopped.
func (i *Instance) Start(ctx context.Context) error {
	if !i.mu.TryLock() {
		return &InvalidTransitionError{From: i.State(), To: StateStarting}
	}
	defer i.mu.Unlock()

	if i.closed {
		return ErrInstanceClosed
	}
	if s := i.State(); s != StateStopped {
		return &InvalidTransitionError{From: s, To: StateStarting}
	}
	if !i.initialized.Load() {
		return ErrNotInitialized
	}

	i.state.Store(int32(StateStarting))

	port, err := i.allocatePort()
	if err != nil {
		i.state.Store(int32(StateStopped))
		return err
	}
	i.port = port
	i.boundPort.Store(int32(port))

	inv, err := i.planner.Plan(command.OpServerArgs, i.facts())
	if err != nil {
		i.releasePort()
		i.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}

	sup := process.NewSupervisor(serverProcessName, i.log, i.cfg.StopGracePeriod)
	cmd := exec.Command(inv.Binary, inv.Args...)
	cmd.Env = inv.Env

	i.log.Debug("starting server", "binary", inv.Binary, "port", port)
	if err := sup.Start(cmd, i.rootDir); err != nil {
		i.releasePort()
		i.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %v", ErrProcessSpawn, err)
	}

	if err := i.waitReady(ctx, sup, port); err != nil {
		if stopErr := sup.Stop(i.cfg.StopTimeout); stopErr != nil {
			i.log.Warn("cleanup after failed start", "error", stopErr)
		}
		sup.Close()
		i.releasePort()

		// A caller-initiated cancellation is not a server failure; the
		// instance may be started again.
		if ctx.Err() != nil {
			i.state.Store(int32(StateStopped))
			return fmt.Errorf("start canceled: %w", ctx.Err())
		}
		i.state.Store(int32(StateFailed))
		if errors.Is(err, process.ErrProcessExited) {
			return fmt.Errorf("server failed during startup: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrReadinessTimeout, err)
	}

	i.sup = sup
	i.state.Store(int32(StateReady))
	go i.watch(sup.Exited())

	i.log.Info("server ready", "port", port, "pid", sup.Pid())
	return nil
}

// waitReady polls the readiness probe until it reports ready, the process
// dies, or the timeout elapses.
func (i *Instance) waitReady(ctx context.Context, sup *process.Supervisor, port int) error {
	return process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      i.cfg.ReadinessInterval,
		Timeout:       i.cfg.ReadinessTimeout,
		Name:          serverProcessName,
		Port:          port,
		Logger:        i.log,
		ProcessExited: sup.Exited(),
	}, func(pollCtx context.Context, _ int) (bool, error) {
		return i.probe.Ready(pollCtx, DefaultHost, port)
	})
}

// watch flips a Ready instance to Failed when its server process exits
// behind the state machine's back. A normal Stop moves the state to Stopping
// before terminating the process, so the swap fails and no transition
// happens.
func (i *Instance) watch(exited <-chan struct{}) {
	if exited == nil {
		return
	}
	<-exited
	if i.state.CompareAndSwap(int32(StateReady), int32(StateFailed)) {
		i.log.Warn("server process exited unexpectedly", "port", i.Port())
	}
}

// Stop terminates the server process: termination signal, grace period, then
// kill, bounded overall by the smaller of the context's remaining time and
// the configured StopTimeout. Stopping an already stopped instance is a
// no-op. Stopping a Failed instance reaps the dead process and releases the
// port but leaves the state Failed.
func (i *Instance) Stop(ctx context.Context) error {
	if !i.mu.TryLock() {
		return &InvalidTransitionError{From: i.State(), To: StateStopping}
	}
	defer i.mu.Unlock()

	return i.stopLocked(ctx)
}

// stopLocked performs the stop transition. Callers must hold mu.
func (i *Instance) stopLocked(ctx context.Context) error {
	switch s := i.State(); s {
	case StateStopped:
		return nil
	case StateReady:
		i.state.Store(int32(StateStopping))
		err := i.stopProcess(ctx)
		i.state.Store(int32(StateStopped))
		return err
	case StateFailed:
		// Resource cleanup only; Failed is terminal.
		return i.stopProcess(ctx)
	default:
		return &InvalidTransitionError{From: s, To: StateStopping}
	}
}

// stopProcess tears down the supervised process and releases the port.
// Callers must hold mu.
func (i *Instance) stopProcess(ctx context.Context) error {
	defer i.releasePort()

	if i.sup == nil {
		return nil
	}
	sup := i.sup
	i.sup = nil

	err := sup.Stop(i.effectiveStopTimeout(ctx))
	sup.Close()
	if err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	i.log.Info("server stopped")
	return nil
}

// Close stops the instance and, under DataRemove, deletes its directory
// tree. Idempotent.
//
// Unlike Stop, Close blocks until any in-flight transition finishes before
// stopping. A Close racing a concurrent Start must not fail fast and then
// delete the directory out from under the server the Start just brought up;
// it waits for the Start to complete and stops whatever it produced.
func (i *Instance) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
	defer cancel()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	stopErr := i.stopLocked(ctx)
	i.closed = true
	i.mu.Unlock()

	if i.cfg.DataPolicy == DataRemove {
		if err := os.RemoveAll(i.rootDir); err != nil {
			i.log.Warn("remove instance data", "dir", i.rootDir, "error", err)
		}
	}
	if i.onClose != nil {
		i.onClose(i)
	}
	return stopErr
}

// allocatePort claims the configured port or asks the registry for a free
// one. Callers must hold mu.
func (i *Instance) allocatePort() (int, error) {
	if i.cfg.Port != 0 {
		if !i.ports.Claim(i.cfg.Port) {
			return 0, fmt.Errorf("%w: port %d already claimed", ErrPortAllocationFailed, i.cfg.Port)
		}
		i.portClaimed = true
		return i.cfg.Port, nil
	}
	port, err := i.ports.Allocate()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPortAllocationFailed, err)
	}
	i.portClaimed = true
	return port, nil
}

// releasePort returns the instance's port to the registry. Callers must hold
// mu.
func (i *Instance) releasePort() {
	if i.portClaimed {
		i.ports.Release(i.port)
		i.portClaimed = false
	}
}

// effectiveStopTimeout returns the stop timeout to use, choosing the smaller
// of the context's remaining time and the configured StopTimeout.
func (i *Instance) effectiveStopTimeout(ctx context.Context) time.Duration {
	timeout := i.cfg.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// facts assembles the command gateway facts for this instance. Callers must
// hold mu (it reads port).
func (i *Instance) facts() command.Facts {
	return command.Facts{
		Binaries:     i.installed.Binaries,
		DataDir:      i.dataDir,
		Host:         DefaultHost,
		Port:         i.port,
		Superuser:    i.cfg.Superuser,
		PasswordFile: i.pwfile,
		Locale:       i.cfg.Locale,
	}
}

// generatePassword produces a random hex password for instances configured
// without one.
func generatePassword() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform's entropy source is broken;
		// nothing sensible can continue.
		panic(fmt.Sprintf("pgenv: generate password: %v", err))
	}
	return hex.EncodeToString(buf)
}
