package release

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/pgenv/internal/platform"
	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrVersionNotFound is returned when no catalog entry satisfies the
// requirement for the requested platform.
const ErrVersionNotFound = sentinel.Error("no release satisfies the version requirement")

// ErrUnsupportedPlatform is returned when the catalog carries no releases at
// all for the requested platform, including the detection fallback tag.
const ErrUnsupportedPlatform = sentinel.Error("no releases published for this platform")

// Resolver maps a version requirement to a concrete release for one
// platform. It consults a Source (typically a CachedSource) and applies the
// selection policy: exact platform match, requirement match, highest
// version wins, pre-releases excluded unless the requirement admits them.
//
// Resolver is stateless apart from its source and safe for concurrent use.
type Resolver struct {
	source Source
	log    *slog.Logger
}

// NewResolver creates a Resolver over the given source. If logger is nil,
// slog.Default() is used. Panics if source is nil.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if source == nil {
		panic("pgenv: resolver requires a catalog source")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, log: logger}
}

// Resolve returns the best release for req on tag.
//
// Errors: ErrUnsupportedPlatform when the catalog has nothing for tag;
// ErrVersionNotFound when the platform is known but nothing satisfies req;
// ErrCatalogUnavailable (wrapped) when the catalog could not be fetched.
func (r *Resolver) Resolve(ctx context.Context, req Requirement, tag platform.Tag) (Release, error) {
	releases, err := r.source.Releases(ctx)
	if err != nil {
		return Release{}, fmt.Errorf("resolve %q for %s: %w", req, tag, err)
	}

	wantPlatform := tag.String()
	platformSeen := false
	var best Release

	for _, candidate := range releases {
		if candidate.Platform != wantPlatform {
			continue
		}
		platformSeen = true
		if !req.Matches(candidate.Version) {
			continue
		}
		if best.Version == nil || candidate.Version.GreaterThan(best.Version) {
			best = candidate
		}
	}

	if !platformSeen {
		return Release{}, fmt.Errorf("resolve %q for %s: %w", req, tag, ErrUnsupportedPlatform)
	}
	if best.Version == nil {
		return Release{}, fmt.Errorf("resolve %q for %s: %w", req, tag, ErrVersionNotFound)
	}

	r.log.Debug("resolved release",
		"requirement", req.String(), "platform", wantPlatform, "version", best.Version.String())
	return best, nil
}
