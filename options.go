package pgenv

import (
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/pgenv/internal/core"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("pgenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("pgenv: %s must not be empty", name))
	}
}

// environmentConfig wraps the core configuration plus root-level settings
// that apply before requests reach the core.
type environmentConfig struct {
	core.EnvironmentConfig

	// prereleases admits pre-release versions as Install candidates.
	prereleases bool
}

// EnvironmentOption configures the Environment during construction via
// NewEnvironment. Each With* function returns an EnvironmentOption that sets
// a specific field.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// durations). These panics are intentional: option values are typically
// compile-time constants, so an invalid value indicates a programmer error
// rather than a runtime condition. The pattern mirrors [regexp.MustCompile].
type EnvironmentOption func(*environmentConfig)

// WithCatalogURL sets the HTTP endpoint serving the release catalog.
//
// Default: DefaultCatalogURL.
//
// Panics if url is empty.
func WithCatalogURL(url string) EnvironmentOption {
	requireNonEmpty("catalog URL", url)
	return func(c *environmentConfig) {
		c.CatalogURL = url
	}
}

// WithBaseDir sets the base directory holding the archive cache, the
// installations, and instance data. Useful in CI environments that need
// isolated directories per project.
//
// Default: "pgenv" under the user cache directory, falling back to the
// system temp directory.
//
// Panics if dir is empty.
func WithBaseDir(dir string) EnvironmentOption {
	requireNonEmpty("base directory", dir)
	return func(c *environmentConfig) {
		c.RootDir = dir
	}
}

// WithCatalogTTL sets how long a cached catalog snapshot is served before
// the catalog endpoint is consulted again.
//
// Default: 24 hours.
//
// Panics if d <= 0.
func WithCatalogTTL(d time.Duration) EnvironmentOption {
	requirePositive("catalog TTL", d)
	return func(c *environmentConfig) {
		c.CatalogTTL = d
	}
}

// WithRetryBudget sets the total time spent retrying transient archive
// download failures for one release.
//
// Default: 2 minutes.
//
// Panics if d <= 0.
func WithRetryBudget(d time.Duration) EnvironmentOption {
	requirePositive("retry budget", d)
	return func(c *environmentConfig) {
		c.RetryBudget = d
	}
}

// WithHTTPClient sets the HTTP client used for catalog and archive requests.
//
// Default: http.DefaultClient.
//
// Panics if client is nil.
func WithHTTPClient(client *http.Client) EnvironmentOption {
	if client == nil {
		panic("pgenv: HTTP client must not be nil")
	}
	return func(c *environmentConfig) {
		c.HTTPClient = client
	}
}

// WithPrereleases admits pre-release versions (e.g. "17.0.0-beta.1") as
// Install candidates. By default only stable releases match.
func WithPrereleases() EnvironmentOption {
	return func(c *environmentConfig) {
		c.prereleases = true
	}
}

// InstanceOption configures one instance during creation via
// Environment.NewInstance. The same panic-on-programmer-error contract as
// EnvironmentOption applies.
type InstanceOption func(*core.InstanceConfig)

// WithPort pins the instance to a fixed listen port instead of allocating a
// free one at start. Starting fails with ErrPortAllocationFailed when
// another instance in this process already claims the port.
//
// Panics if port is outside [1, 65535].
func WithPort(port int) InstanceOption {
	if port < 1 || port > 65535 {
		panic(fmt.Sprintf("pgenv: port must be in [1, 65535], got %d", port))
	}
	return func(c *core.InstanceConfig) {
		c.Port = port
	}
}

// WithSuperuser sets the administrative role name created during storage
// initialization.
//
// Default: "postgres".
//
// Panics if name is empty.
func WithSuperuser(name string) InstanceOption {
	requireNonEmpty("superuser name", name)
	return func(c *core.InstanceConfig) {
		c.Superuser = name
	}
}

// WithPassword sets the superuser password. When not set, a random password
// is generated at instance creation and available via Instance.Password.
//
// Panics if password is empty.
func WithPassword(password string) InstanceOption {
	requireNonEmpty("password", password)
	return func(c *core.InstanceConfig) {
		c.Password = password
	}
}

// WithLocale sets the storage locale passed to initialization.
//
// Default: the server's own default locale handling.
//
// Panics if locale is empty.
func WithLocale(locale string) InstanceOption {
	requireNonEmpty("locale", locale)
	return func(c *core.InstanceConfig) {
		c.Locale = locale
	}
}

// WithReadinessTimeout sets the maximum time Start waits for the server to
// accept connections before killing it and failing.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithReadinessTimeout(d time.Duration) InstanceOption {
	requirePositive("readiness timeout", d)
	return func(c *core.InstanceConfig) {
		c.ReadinessTimeout = d
	}
}

// WithReadinessInterval sets the readiness probe poll interval during Start.
//
// Default: 100 milliseconds.
//
// Panics if d <= 0.
func WithReadinessInterval(d time.Duration) InstanceOption {
	requirePositive("readiness interval", d)
	return func(c *core.InstanceConfig) {
		c.ReadinessInterval = d
	}
}

// WithStopTimeout sets the maximum time allowed for the whole stop sequence.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithStopTimeout(d time.Duration) InstanceOption {
	requirePositive("stop timeout", d)
	return func(c *core.InstanceConfig) {
		c.StopTimeout = d
	}
}

// WithStopGracePeriod sets the time Stop waits after the termination signal
// before escalating to a kill.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithStopGracePeriod(d time.Duration) InstanceOption {
	requirePositive("stop grace period", d)
	return func(c *core.InstanceConfig) {
		c.StopGracePeriod = d
	}
}

// WithDataPolicy sets what happens to the instance's data directory on
// Close.
//
// Default: DataRemove.
//
// Panics if policy is not a defined DataPolicy value.
func WithDataPolicy(policy DataPolicy) InstanceOption {
	switch policy {
	case DataRemove, DataKeep:
	default:
		panic(fmt.Sprintf("pgenv: unknown data policy: %d", int(policy)))
	}
	return func(c *core.InstanceConfig) {
		c.DataPolicy = policy
	}
}
