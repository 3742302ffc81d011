package core

import "github.com/giantswarm/pgenv/internal/sentinel"

const (
	// ErrNotInitialized is returned by Start when the data directory has not
	// been initialized yet.
	ErrNotInitialized = sentinel.Error("storage not initialized")

	// ErrStorageInitFailed is returned when storage initialization ran but
	// did not complete successfully.
	ErrStorageInitFailed = sentinel.Error("storage initialization failed")

	// ErrProcessSpawn is returned when the server process could not be
	// launched at all.
	ErrProcessSpawn = sentinel.Error("server process spawn failed")

	// ErrReadinessTimeout is returned when the server process started but
	// did not become ready within the readiness timeout. The process is
	// terminated before this error is returned.
	ErrReadinessTimeout = sentinel.Error("server did not become ready in time")

	// ErrPortAllocationFailed is returned when no listen port could be
	// allocated or a configured port is already claimed by another instance.
	ErrPortAllocationFailed = sentinel.Error("port allocation failed")

	// ErrVersionInUse is returned by Uninstall while a live instance is still
	// bound to the installation.
	ErrVersionInUse = sentinel.Error("installed version is in use by a live instance")

	// ErrShuttingDown is returned for operations requested after Shutdown
	// has begun.
	ErrShuttingDown = sentinel.Error("environment is shutting down")

	// ErrInstanceClosed is returned for lifecycle operations requested after
	// the instance has been closed.
	ErrInstanceClosed = sentinel.Error("instance is closed")
)
