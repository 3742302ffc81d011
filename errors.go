package pgenv

import (
	"github.com/giantswarm/pgenv/internal/core"
	"github.com/giantswarm/pgenv/internal/extract"
	"github.com/giantswarm/pgenv/internal/fetch"
	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/release"
	"github.com/giantswarm/pgenv/internal/store"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrVersionNotFound is returned by Install when no catalog release
	// satisfies the version requirement for this platform.
	ErrVersionNotFound = release.ErrVersionNotFound

	// ErrUnsupportedPlatform is returned by Install when the catalog carries
	// no releases for this platform at all.
	ErrUnsupportedPlatform = release.ErrUnsupportedPlatform

	// ErrCatalogUnavailable is returned when the release catalog could not
	// be fetched and no usable cached snapshot exists.
	ErrCatalogUnavailable = release.ErrCatalogUnavailable

	// ErrChecksumMismatch is returned when a downloaded archive does not
	// hash to the digest declared by the catalog. The archive is discarded
	// and never installed.
	ErrChecksumMismatch = fetch.ErrChecksumMismatch

	// ErrMissingExpectedBinary is returned when an archive unpacks cleanly
	// but lacks one of the server utility binaries.
	ErrMissingExpectedBinary = extract.ErrMissingExpectedBinary

	// ErrDiskWrite is wrapped into errors caused by failed filesystem
	// mutations anywhere in the pipeline (cache writes, extraction,
	// completion markers), distinguishing them from network and archive
	// errors.
	ErrDiskWrite = fileutil.ErrDiskWrite

	// ErrNotInstalled is returned when an operation references a version
	// with no completed installation.
	ErrNotInstalled = store.ErrNotInstalled

	// ErrNotInitialized is returned by Start when the instance's data
	// directory has not been initialized yet.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrStorageInitFailed is returned by Initialize when storage
	// initialization ran but did not complete successfully.
	ErrStorageInitFailed = core.ErrStorageInitFailed

	// ErrReadinessTimeout is returned by Start when the server process
	// started but did not become ready in time. The process is terminated
	// before this error is returned.
	ErrReadinessTimeout = core.ErrReadinessTimeout

	// ErrPortAllocationFailed is returned by Start when no listen port could
	// be allocated or a configured port is already claimed.
	ErrPortAllocationFailed = core.ErrPortAllocationFailed

	// ErrVersionInUse is returned by Uninstall while a live instance is
	// still bound to the installation.
	ErrVersionInUse = core.ErrVersionInUse

	// ErrShuttingDown is returned for operations requested after Shutdown
	// has begun.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrInstanceClosed is returned for lifecycle operations requested on an
	// instance after Close.
	ErrInstanceClosed = core.ErrInstanceClosed
)

// InvalidTransitionError reports a lifecycle operation requested from a
// state that does not permit it.
type InvalidTransitionError = core.InvalidTransitionError
