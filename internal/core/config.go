package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/pgenv/internal/command"
	"github.com/giantswarm/pgenv/internal/release"
)

// DefaultHost is the listen address for every instance. Embedded servers are
// loopback-only; exposing them beyond the local machine is out of scope.
const DefaultHost = "127.0.0.1"

// DataPolicy controls what happens to an instance's data directory when the
// instance is closed.
type DataPolicy int

const (
	// DataRemove deletes the data directory on Close. The default: embedded
	// servers are throwaway.
	DataRemove DataPolicy = iota

	// DataKeep leaves the data directory in place so a later instance can be
	// pointed at the same data.
	DataKeep
)

// String implements fmt.Stringer.
func (p DataPolicy) String() string {
	switch p {
	case DataRemove:
		return "remove"
	case DataKeep:
		return "keep"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// valid reports whether p is a defined policy value.
func (p DataPolicy) valid() bool {
	return p == DataRemove || p == DataKeep
}

// InstanceConfig carries per-instance settings. The zero value is not valid;
// use the Default* constants or the root package options to build one.
type InstanceConfig struct {
	// Superuser is the administrative role created during storage
	// initialization and used in connection strings.
	Superuser string

	// Password is the superuser password. Empty means a random password is
	// generated at instance creation.
	Password string

	// Locale overrides the storage locale when non-empty.
	Locale string

	// Port is the listen port. Zero means a free port is allocated at start.
	Port int

	// ReadinessTimeout bounds how long Start waits for the server to accept
	// connections before killing it and failing.
	ReadinessTimeout time.Duration

	// ReadinessInterval is the probe poll interval during Start.
	ReadinessInterval time.Duration

	// StopTimeout bounds the whole stop sequence.
	StopTimeout time.Duration

	// StopGracePeriod is how long Stop waits after the termination signal
	// before escalating to a kill.
	StopGracePeriod time.Duration

	// DataPolicy controls data directory removal on Close.
	DataPolicy DataPolicy
}

// Validate checks the configuration, accumulating all violations.
func (c InstanceConfig) Validate() error {
	var errs []error
	if c.Superuser == "" {
		errs = append(errs, fmt.Errorf("Superuser must not be empty"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("Port must be in [0, 65535], got %d", c.Port))
	}
	if c.ReadinessTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ReadinessTimeout must be positive, got %v", c.ReadinessTimeout))
	}
	if c.ReadinessInterval <= 0 {
		errs = append(errs, fmt.Errorf("ReadinessInterval must be positive, got %v", c.ReadinessInterval))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("StopTimeout must be positive, got %v", c.StopTimeout))
	}
	if c.StopGracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("StopGracePeriod must be positive, got %v", c.StopGracePeriod))
	}
	if !c.DataPolicy.valid() {
		errs = append(errs, fmt.Errorf("DataPolicy is not a valid policy: %d", int(c.DataPolicy)))
	}
	return errors.Join(errs...)
}

// EnvironmentConfig carries the environment-wide settings: where things live
// on disk, where releases come from, and the defaults applied to instances.
type EnvironmentConfig struct {
	// RootDir is the base directory. Archives land under RootDir/cache,
	// installations under RootDir/installs, instance data under RootDir/data.
	RootDir string

	// CatalogURL is the HTTP endpoint serving the release catalog. Ignored
	// when Source is set.
	CatalogURL string

	// CatalogTTL bounds how long a cached catalog snapshot is trusted. Zero
	// means release.DefaultCatalogTTL.
	CatalogTTL time.Duration

	// RetryBudget bounds the total time retrying one archive download. Zero
	// means fetch.DefaultRetryBudget.
	RetryBudget time.Duration

	// HTTPClient is used for catalog and archive requests. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// InstanceDefaults is the configuration applied to instances created
	// without overrides.
	InstanceDefaults InstanceConfig

	// Source overrides the catalog source, bypassing CatalogURL and the
	// SQLite snapshot cache. Meant for embedding fixed catalogs and tests.
	Source release.Source

	// Planner and Runner override the command gateway. Nil means the stock
	// planner and the os/exec runner.
	Planner command.Planner
	Runner  command.Runner

	// Probe overrides the readiness probe applied to new instances. Nil
	// means a TCP connect probe.
	Probe ReadinessProbe
}

// Validate checks the configuration, accumulating all violations.
func (c EnvironmentConfig) Validate() error {
	var errs []error
	if c.RootDir == "" {
		errs = append(errs, fmt.Errorf("RootDir must not be empty"))
	}
	if c.CatalogURL == "" && c.Source == nil {
		errs = append(errs, fmt.Errorf("either CatalogURL or Source must be set"))
	}
	if err := c.InstanceDefaults.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("InstanceDefaults: %w", err))
	}
	return errors.Join(errs...)
}
