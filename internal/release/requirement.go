package release

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Latest is the requirement string selecting the newest stable release.
const Latest = "latest"

// Requirement is an immutable semantic-version constraint supplied by the
// caller: exact ("16.4.0"), partial ("16", equivalent to "16.x.x"), a range
// (">=16.1 <17"), or Latest.
type Requirement struct {
	raw         string
	constraint  *semver.Constraints // nil means any version (Latest)
	prereleases bool
}

// ParseRequirement parses a requirement string. Pre-release candidates are
// excluded unless the constraint itself names a pre-release (semver matching
// already requires that) or WithPrereleases is applied afterwards.
func ParseRequirement(s string) (Requirement, error) {
	if s == "" || s == Latest {
		return Requirement{raw: Latest}, nil
	}
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Requirement{}, fmt.Errorf("parse version requirement %q: %w", s, err)
	}
	return Requirement{raw: s, constraint: c}, nil
}

// MustParseRequirement is ParseRequirement that panics on error, for
// requirement strings known at compile time.
func MustParseRequirement(s string) Requirement {
	r, err := ParseRequirement(s)
	if err != nil {
		panic("pgenv: " + err.Error())
	}
	return r
}

// WithPrereleases returns a copy of the requirement that also admits
// pre-release versions.
func (r Requirement) WithPrereleases() Requirement {
	r.prereleases = true
	return r
}

// AllowsPrereleases reports whether pre-release versions are admissible.
func (r Requirement) AllowsPrereleases() bool {
	return r.prereleases
}

// Matches reports whether v satisfies the requirement. Pre-release versions
// are rejected unless the requirement explicitly admits them.
func (r Requirement) Matches(v *semver.Version) bool {
	if v == nil {
		return false
	}
	if v.Prerelease() != "" && !r.prereleases {
		return false
	}
	if r.constraint == nil {
		return true
	}
	if v.Prerelease() != "" && r.prereleases {
		// Constraints reject pre-releases by default; compare against the
		// release part so "16" admits 16.5.0-beta.1 when opted in.
		stable, err := v.SetPrerelease("")
		if err != nil {
			return false
		}
		return r.constraint.Check(&stable)
	}
	return r.constraint.Check(v)
}

// String returns the original requirement string ("latest" for the empty
// requirement).
func (r Requirement) String() string {
	return r.raw
}
