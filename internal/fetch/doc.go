// Package fetch downloads release archives into a local cache and verifies
// their integrity before anything else is allowed to touch them.
//
// The cache is content-addressed by release cache key. Concurrent fetches of
// the same release collapse to one download inside the process (singleflight)
// and to one download across processes (a file lock next to the cache entry).
// Transient network failures are retried with exponential backoff; checksum
// mismatches are never retried.
package fetch
