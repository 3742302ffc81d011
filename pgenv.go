package pgenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/giantswarm/pgenv/internal/core"
	"github.com/giantswarm/pgenv/internal/release"
)

// Singleton state for NewEnvironment. The first call creates the environment;
// subsequent calls return the same instance and log a warning.
//
// singletonMu protects all three so that resetForTesting (used in tests) is
// concurrency-safe with NewEnvironment.
var (
	singletonMu   sync.Mutex
	singletonEnv  Environment
	singletonErr  error
	singletonOnce sync.Once
)

// Compile-time interface satisfaction checks.
var (
	_ Environment = (*environmentWrapper)(nil)
	_ Instance    = (*instanceWrapper)(nil)
)

// environmentWrapper wraps core.Environment to implement the Environment
// interface. The core.Environment is stored as a named (unexported) field
// rather than embedded to prevent callers from using type assertions to
// reach internal methods that are not part of the public surface.
type environmentWrapper struct {
	env         *core.Environment
	prereleases bool
}

// Install implements Environment.Install.
func (w *environmentWrapper) Install(ctx context.Context, version string) (InstalledVersion, error) {
	req, err := release.ParseRequirement(version)
	if err != nil {
		return InstalledVersion{}, fmt.Errorf("parse version requirement %q: %w", version, err)
	}
	if w.prereleases {
		req = req.WithPrereleases()
	}
	return w.env.Install(ctx, req)
}

// NewInstance implements Environment.NewInstance.
//
//nolint:ireturn // Returns Instance interface by design for testability (mockable).
func (w *environmentWrapper) NewInstance(installed InstalledVersion, opts ...InstanceOption) (Instance, error) {
	cfg := w.env.InstanceDefaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	inst, err := w.env.NewInstance(installed, cfg)
	if err != nil {
		return nil, err
	}
	return &instanceWrapper{inst: inst}, nil
}

// Installed implements Environment.Installed.
func (w *environmentWrapper) Installed() ([]InstalledVersion, error) {
	return w.env.Installed()
}

// Uninstall implements Environment.Uninstall.
func (w *environmentWrapper) Uninstall(installed InstalledVersion) error {
	return w.env.Uninstall(installed.CacheKey())
}

// Shutdown implements Environment.Shutdown.
func (w *environmentWrapper) Shutdown(ctx context.Context) error {
	return w.env.Shutdown(ctx)
}

// instanceWrapper wraps core.Instance to implement the Instance interface.
type instanceWrapper struct {
	inst *core.Instance
}

func (w *instanceWrapper) ID() string { return w.inst.ID() }

func (w *instanceWrapper) State() State { return w.inst.State() }

func (w *instanceWrapper) Initialize(ctx context.Context) error { return w.inst.Initialize(ctx) }

func (w *instanceWrapper) Start(ctx context.Context) error { return w.inst.Start(ctx) }

func (w *instanceWrapper) Stop(ctx context.Context) error { return w.inst.Stop(ctx) }

func (w *instanceWrapper) Close() error { return w.inst.Close() }

func (w *instanceWrapper) Port() int { return w.inst.Port() }

func (w *instanceWrapper) DataDir() string { return w.inst.DataDir() }

func (w *instanceWrapper) Superuser() string { return w.inst.Superuser() }

func (w *instanceWrapper) Password() string { return w.inst.Password() }

func (w *instanceWrapper) URL(database string) string { return w.inst.URL(database) }

// defaultEnvironmentConfig returns an environmentConfig populated with all
// default values. Both NewEnvironment and test helpers use this to avoid
// duplicating the default field assignments.
func defaultEnvironmentConfig() environmentConfig {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return environmentConfig{EnvironmentConfig: core.EnvironmentConfig{
		RootDir:     filepath.Join(base, DefaultBaseDirName),
		CatalogURL:  DefaultCatalogURL,
		CatalogTTL:  DefaultCatalogTTL,
		RetryBudget: DefaultRetryBudget,
		InstanceDefaults: core.InstanceConfig{
			Superuser:         DefaultSuperuser,
			ReadinessTimeout:  DefaultReadinessTimeout,
			ReadinessInterval: DefaultReadinessInterval,
			StopTimeout:       DefaultStopTimeout,
			StopGracePeriod:   DefaultStopGracePeriod,
			DataPolicy:        DefaultDataPolicy,
		},
	}}
}

// resetForTesting resets the singleton state so that the next call to
// NewEnvironment creates a fresh environment. It must only be called from
// tests.
func resetForTesting() {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonEnv = nil
	singletonErr = nil
	singletonOnce = sync.Once{}
}

// NewEnvironment returns the process-level singleton Environment.
//
// The first call creates the environment with the given options and stores
// it. Subsequent calls return the same instance; options are ignored and a
// warning is logged. Construction performs no I/O; the catalog is consulted
// on first Install.
//
// The singleton is never reset after Shutdown; callers that need a fresh
// environment must restart the process.
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns Environment interface by design for testability (mockable).
func NewEnvironment(opts ...EnvironmentOption) (Environment, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	// created is written inside the Do closure and read after Do returns.
	// sync.Once guarantees the closure completes before Do returns, so the
	// write is visible here without additional synchronization.
	created := false
	singletonOnce.Do(func() {
		cfg := defaultEnvironmentConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		env, err := core.NewEnvironment(cfg.EnvironmentConfig)
		if err != nil {
			singletonErr = err
			return
		}
		singletonEnv = &environmentWrapper{env: env, prereleases: cfg.prereleases}
		created = true
	})
	if singletonErr != nil {
		return nil, singletonErr
	}
	if !created {
		core.Logger().Warn("NewEnvironment called more than once; returning existing singleton (options ignored)")
	}
	return singletonEnv, nil
}
