// Package store tracks which server versions are installed on disk.
//
// An installation is a versioned directory under the store root plus a
// completion marker file inside it. The marker is written atomically and
// always last, so a directory without a marker is an aborted install and is
// never reported as installed. An in-memory index fronts the disk state and
// is refreshed on demand.
package store
