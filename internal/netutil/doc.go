// Package netutil provides listening-port allocation with an in-process
// registry that prevents duplicate assignment across concurrent instances.
package netutil
