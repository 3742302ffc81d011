package pgenv

import (
	"log/slog"

	"github.com/giantswarm/pgenv/internal/core"
)

// SetLogger replaces the package-level logger used by pgenv. If l is nil,
// the logger resets to slog.Default() with a "component" attribute.
//
// SetLogger is safe to call concurrently with other pgenv operations.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
