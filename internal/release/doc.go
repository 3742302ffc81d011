// Package release models the release catalog: the descriptors served by the
// catalog endpoint, version requirements, and the resolver that picks the
// highest matching release for a platform.
//
// Source fetches the catalog over HTTP; CachedSource wraps a Source with a
// TTL-bounded SQLite snapshot so repeated resolutions do not hit the network
// and a stale snapshot can still serve when the endpoint is down.
package release
