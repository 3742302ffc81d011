package release

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Format identifies the container/compression pipeline of a release archive.
// The format is carried as catalog metadata and never content-sniffed, so
// each archive decodes through exactly one pipeline.
type Format string

const (
	FormatTarGz Format = "tar.gz"
	FormatTarXz Format = "tar.xz"
	FormatZip   Format = "zip"
)

// IsValid reports whether f is a recognized archive format.
func (f Format) IsValid() bool {
	switch f {
	case FormatTarGz, FormatTarXz, FormatZip:
		return true
	default:
		return false
	}
}

// Checksum is the integrity declaration for a release archive.
type Checksum struct {
	Algorithm string `json:"algorithm"` // "sha256" or "sha512"
	Digest    string `json:"digest"`    // lowercase hex
}

// Release describes one version of the server built for one platform:
// where to download it, how to verify it, and how to unpack it. Immutable
// once produced by the Resolver.
type Release struct {
	Version     *semver.Version `json:"version"`
	Platform    string          `json:"platform"`
	DownloadURL string          `json:"url"`
	Checksum    Checksum        `json:"checksum"`
	Format      Format          `json:"format"`
}

// CacheKey returns the deterministic identifier deduplicating fetch and
// install work for this release: "<version>-<platform>". It names both the
// cached archive blob and the install directory.
func (r Release) CacheKey() string {
	return fmt.Sprintf("%s-%s", r.Version, r.Platform)
}

// Validate checks that all catalog-supplied fields are present, so a
// malformed catalog entry is rejected at decode time rather than surfacing
// as a confusing mid-pipeline failure.
func (r Release) Validate() error {
	if r.Version == nil {
		return fmt.Errorf("release missing version")
	}
	if r.Platform == "" {
		return fmt.Errorf("release %s missing platform", r.Version)
	}
	if r.DownloadURL == "" {
		return fmt.Errorf("release %s/%s missing download url", r.Version, r.Platform)
	}
	if r.Checksum.Algorithm == "" || r.Checksum.Digest == "" {
		return fmt.Errorf("release %s/%s missing checksum", r.Version, r.Platform)
	}
	if !r.Format.IsValid() {
		return fmt.Errorf("release %s/%s has unsupported format %q", r.Version, r.Platform, r.Format)
	}
	return nil
}
