package pgenv

import (
	"time"

	"github.com/giantswarm/pgenv/internal/fetch"
	"github.com/giantswarm/pgenv/internal/release"
)

// Default configuration values for NewEnvironment and NewInstance.
// These constants are exported so callers can reference the defaults when
// building custom configurations relative to them (e.g.,
// 2 * DefaultReadinessTimeout).
const (
	// DefaultCatalogURL is the release catalog consulted when no custom URL
	// or source is configured.
	DefaultCatalogURL = "https://pgenv.giantswarm.io/catalog.json"

	// DefaultBaseDirName is the directory name under the user cache
	// directory (or the system temp directory when no cache directory is
	// available) holding the archive cache, the installations, and instance
	// data.
	DefaultBaseDirName = "pgenv"

	// DefaultSuperuser is the administrative role created during storage
	// initialization.
	DefaultSuperuser = "postgres"

	// DefaultCatalogTTL is how long a cached catalog snapshot is served
	// before the catalog endpoint is consulted again.
	DefaultCatalogTTL = release.DefaultCatalogTTL

	// DefaultRetryBudget is the total time spent retrying transient archive
	// download failures before giving up.
	DefaultRetryBudget = fetch.DefaultRetryBudget

	// DefaultReadinessTimeout is the maximum time Start waits for the server
	// to accept connections before killing it and failing.
	DefaultReadinessTimeout = 30 * time.Second

	// DefaultReadinessInterval is the readiness probe poll interval.
	DefaultReadinessInterval = 100 * time.Millisecond

	// DefaultStopTimeout is the maximum time allowed for the whole stop
	// sequence.
	DefaultStopTimeout = 10 * time.Second

	// DefaultStopGracePeriod is the time between the termination signal and
	// the kill escalation during Stop.
	DefaultStopGracePeriod = 5 * time.Second

	// DefaultDataPolicy removes an instance's data directory when the
	// instance is closed. Embedded servers are throwaway by default.
	DefaultDataPolicy = DataRemove
)
