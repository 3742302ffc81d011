package release

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/giantswarm/pgenv/internal/platform"
)

// Compile-time check: staticSource must satisfy Source.
var _ Source = (*staticSource)(nil)

// staticSource serves a fixed release list and counts calls.
type staticSource struct {
	releases []Release
	err      error
	calls    int
}

func (s *staticSource) Releases(context.Context) ([]Release, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.releases, nil
}

// rel builds a valid catalog entry for tests.
func rel(version, plat string) Release {
	return Release{
		Version:     semver.MustParse(version),
		Platform:    plat,
		DownloadURL: "https://example.test/" + version + "-" + plat + ".tar.gz",
		Checksum:    Checksum{Algorithm: "sha256", Digest: "00"},
		Format:      FormatTarGz,
	}
}

var linuxAmd64 = platform.Tag{OS: "linux", Arch: "amd64"}

func TestResolveSelectsHighestMatch(t *testing.T) {
	t.Parallel()

	src := &staticSource{releases: []Release{
		rel("16.1.0", "linux-amd64"),
		rel("16.4.0", "linux-amd64"),
		rel("16.4.0", "darwin-arm64"),
		rel("17.2.0", "linux-amd64"),
		rel("15.8.0", "linux-amd64"),
	}}
	r := NewResolver(src, nil)

	tests := map[string]struct {
		req  string
		want string
	}{
		"partial picks newest in major": {req: "16", want: "16.4.0"},
		"latest picks newest overall":   {req: "latest", want: "17.2.0"},
		"exact version":                 {req: "16.1.0", want: "16.1.0"},
		"range":                         {req: ">=15.0.0 <17.0.0", want: "16.4.0"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Resolve(context.Background(), MustParseRequirement(tc.req), linuxAmd64)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.req, err)
			}
			if got.Version.String() != tc.want {
				t.Errorf("Resolve(%q) = %s, want %s", tc.req, got.Version, tc.want)
			}
			if got.Platform != "linux-amd64" {
				t.Errorf("Resolve(%q) platform = %s, want linux-amd64", tc.req, got.Platform)
			}
		})
	}
}

func TestResolveExcludesPrereleasesByDefault(t *testing.T) {
	t.Parallel()

	src := &staticSource{releases: []Release{
		rel("16.4.0", "linux-amd64"),
		rel("17.0.0-beta.1", "linux-amd64"),
	}}
	r := NewResolver(src, nil)

	got, err := r.Resolve(context.Background(), MustParseRequirement(Latest), linuxAmd64)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Version.String() != "16.4.0" {
		t.Errorf("Resolve(latest) = %s, want stable 16.4.0", got.Version)
	}

	withPre, err := r.Resolve(context.Background(), MustParseRequirement(Latest).WithPrereleases(), linuxAmd64)
	if err != nil {
		t.Fatalf("Resolve with prereleases: %v", err)
	}
	if withPre.Version.String() != "17.0.0-beta.1" {
		t.Errorf("Resolve(latest, prereleases) = %s, want 17.0.0-beta.1", withPre.Version)
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		src     *staticSource
		req     string
		wantErr error
	}{
		"unknown platform": {
			src:     &staticSource{releases: []Release{rel("16.4.0", "darwin-arm64")}},
			req:     "16",
			wantErr: ErrUnsupportedPlatform,
		},
		"no matching version": {
			src:     &staticSource{releases: []Release{rel("15.8.0", "linux-amd64")}},
			req:     "16",
			wantErr: ErrVersionNotFound,
		},
		"catalog failure": {
			src:     &staticSource{err: ErrCatalogUnavailable},
			req:     "16",
			wantErr: ErrCatalogUnavailable,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := NewResolver(tc.src, nil)
			_, err := r.Resolve(context.Background(), MustParseRequirement(tc.req), linuxAmd64)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Resolve error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRequirementMatching(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		req     Requirement
		version string
		want    bool
	}{
		"partial matches patch releases": {req: MustParseRequirement("16"), version: "16.4.2", want: true},
		"partial rejects other major":    {req: MustParseRequirement("16"), version: "17.0.0", want: false},
		"latest matches anything stable": {req: MustParseRequirement(Latest), version: "9.6.24", want: true},
		"prerelease rejected by default": {req: MustParseRequirement("16"), version: "16.5.0-rc.1", want: false},
		"prerelease admitted on opt-in":  {req: MustParseRequirement("16").WithPrereleases(), version: "16.5.0-rc.1", want: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := tc.req.Matches(semver.MustParse(tc.version)); got != tc.want {
				t.Errorf("Matches(%s) = %v, want %v", tc.version, got, tc.want)
			}
		})
	}
}

func TestParseRequirementRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseRequirement("not a version"); err == nil {
		t.Error("ParseRequirement should reject an unparsable constraint")
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	t.Parallel()

	a := rel("16.4.0", "linux-amd64")
	b := rel("16.4.0", "linux-amd64")
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("CacheKey not deterministic: %q vs %q", a.CacheKey(), b.CacheKey())
	}
	if a.CacheKey() != "16.4.0-linux-amd64" {
		t.Errorf("CacheKey = %q, want 16.4.0-linux-amd64", a.CacheKey())
	}
}
