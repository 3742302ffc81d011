// Package platform derives the canonical platform/architecture tag used to
// select a compatible release archive. The tag is computed once per process
// and memoized; unsupported architectures map to a fixed fallback tag.
package platform
