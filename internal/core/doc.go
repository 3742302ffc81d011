// Package core implements the environment and instance lifecycle: the
// install pipeline tying resolver, fetcher, extractor and store together, and
// the per-instance state machine driving storage initialization, server
// startup, readiness waiting and shutdown.
package core
