// Package sentinel provides a const-able error type for declaring immutable
// sentinel errors that work with errors.Is through wrapped chains.
package sentinel
