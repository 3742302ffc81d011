package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/pgenv/internal/command"
	"github.com/giantswarm/pgenv/internal/extract"
	"github.com/giantswarm/pgenv/internal/fetch"
	"github.com/giantswarm/pgenv/internal/netutil"
	"github.com/giantswarm/pgenv/internal/platform"
	"github.com/giantswarm/pgenv/internal/release"
	"github.com/giantswarm/pgenv/internal/store"
)

// Environment owns the acquisition pipeline and every instance created
// through it. One Environment is shared per process; the root package
// enforces the singleton.
type Environment struct {
	cfg EnvironmentConfig

	resolver  *release.Resolver
	catalog   *release.CachedSource // nil when a Source was injected
	fetcher   *fetch.Fetcher
	extractor *extract.Extractor
	store     *store.Store
	ports     *netutil.PortRegistry
	planner   command.Planner
	runner    command.Runner
	probe     ReadinessProbe
	log       *slog.Logger

	// installs collapses concurrent Install calls for the same release into
	// one fetch+extract.
	installs singleflight.Group
	nextID   atomic.Uint64

	mu           sync.Mutex
	instances    map[string]*Instance
	shuttingDown bool
}

// NewEnvironment creates an Environment from cfg.
func NewEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment config: %w", err)
	}

	log := Logger()

	var catalog *release.CachedSource
	source := cfg.Source
	if source == nil {
		catalog = release.NewCachedSource(
			release.NewHTTPSource(cfg.CatalogURL, cfg.HTTPClient),
			filepath.Join(cfg.RootDir, "cache", "catalog.db"),
			cfg.CatalogTTL,
			log,
		)
		source = catalog
	}

	fetcher, err := fetch.NewFetcher(fetch.Config{
		CacheDir:    filepath.Join(cfg.RootDir, "cache"),
		Client:      cfg.HTTPClient,
		RetryBudget: cfg.RetryBudget,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	st := store.NewStore(filepath.Join(cfg.RootDir, "installs"), log)

	planner := cfg.Planner
	if planner == nil {
		planner = command.NewDefaultPlanner()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = command.NewExecRunner(log)
	}
	probe := cfg.Probe
	if probe == nil {
		probe = &TCPProbe{}
	}

	return &Environment{
		cfg:       cfg,
		resolver:  release.NewResolver(source, log),
		catalog:   catalog,
		fetcher:   fetcher,
		extractor: extract.NewExtractor(st, log),
		store:     st,
		ports:     netutil.NewPortRegistry(log),
		planner:   planner,
		runner:    runner,
		probe:     probe,
		log:       log,
		instances: make(map[string]*Instance),
	}, nil
}

// Install resolves req for the current platform and makes sure the matching
// release is installed, running fetch and extraction only when needed.
// Concurrent installs of the same release share one pipeline run; installs
// of different releases proceed in parallel.
func (e *Environment) Install(ctx context.Context, req release.Requirement) (store.InstalledVersion, error) {
	tag := platform.Current()
	rel, err := e.resolver.Resolve(ctx, req, tag)
	if err != nil {
		return store.InstalledVersion{}, err
	}

	key := rel.CacheKey()
	if iv, err := e.store.Get(key); err == nil {
		e.log.Debug("release already installed", "release", key)
		return iv, nil
	}

	v, err, _ := e.installs.Do(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have finished
		// the install while this one resolved.
		if iv, err := e.store.Get(key); err == nil {
			return iv, nil
		}

		archive, err := e.fetcher.Fetch(ctx, rel)
		if err != nil {
			return nil, err
		}
		return e.extractor.Extract(ctx, archive, rel)
	})
	if err != nil {
		return store.InstalledVersion{}, err
	}
	return v.(store.InstalledVersion), nil
}

// NewInstance creates an instance bound to an installed version. The
// instance starts life Stopped and uninitialized.
func (e *Environment) NewInstance(installed store.InstalledVersion, cfg InstanceConfig) (*Instance, error) {
	if err := installed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid installed version: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instance config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shuttingDown {
		return nil, ErrShuttingDown
	}

	id := fmt.Sprintf("pg-%d", e.nextID.Add(1))
	inst := NewInstance(NewInstanceParams{
		ID:        id,
		RootDir:   filepath.Join(e.cfg.RootDir, "data", id),
		Installed: installed,
		Planner:   e.planner,
		Runner:    e.runner,
		Probe:     e.probe,
		Ports:     e.ports,
		Config:    cfg,
		OnClose:   e.forget,
	})
	e.instances[id] = inst

	e.log.Debug("instance created", "id", id, "release", installed.CacheKey())
	return inst, nil
}

// InstanceDefaults returns the configured per-instance defaults.
func (e *Environment) InstanceDefaults() InstanceConfig {
	return e.cfg.InstanceDefaults
}

// Installed lists all completed installations.
func (e *Environment) Installed() ([]store.InstalledVersion, error) {
	return e.store.Installed()
}

// Uninstall removes an installation identified by its cache key. Fails with
// ErrVersionInUse while any live instance is bound to it.
func (e *Environment) Uninstall(cacheKey string) error {
	e.mu.Lock()
	for _, inst := range e.instances {
		if inst.Version().CacheKey() == cacheKey {
			e.mu.Unlock()
			return fmt.Errorf("%w: instance %s", ErrVersionInUse, inst.ID())
		}
	}
	e.mu.Unlock()

	return e.store.Remove(cacheKey)
}

// forget drops a closed instance from the registry.
func (e *Environment) forget(inst *Instance) {
	e.mu.Lock()
	delete(e.instances, inst.ID())
	e.mu.Unlock()
}

// Shutdown closes all live instances in parallel and releases the
// environment's resources. After Shutdown, NewInstance fails with
// ErrShuttingDown.
func (e *Environment) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shuttingDown = true
	live := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		live = append(live, inst)
	}
	e.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, inst := range live {
		g.Go(inst.Close)
	}
	err := g.Wait()

	if e.catalog != nil {
		if closeErr := e.catalog.Close(); closeErr != nil {
			e.log.Warn("close catalog cache", "error", closeErr)
		}
	}

	if err != nil {
		return fmt.Errorf("shutdown environment: %w", err)
	}
	e.log.Info("environment shut down", "instances", len(live))
	return nil
}
