package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/release"
	"github.com/giantswarm/pgenv/internal/sentinel"
	"github.com/giantswarm/pgenv/internal/store"
)

const (
	// ErrUnsupportedFormat is returned for archive formats the extractor
	// cannot decode.
	ErrUnsupportedFormat = sentinel.Error("unsupported archive format")

	// ErrCorruptArchive is returned when an archive cannot be decoded or
	// contains entries escaping the extraction root.
	ErrCorruptArchive = sentinel.Error("corrupt archive")

	// ErrMissingExpectedBinary is returned when an archive unpacks cleanly
	// but lacks one of the server utility binaries.
	ErrMissingExpectedBinary = sentinel.Error("archive is missing an expected binary")
)

// expectedBinaries are the utilities every usable installation must ship.
var expectedBinaries = []string{"initdb", "postgres", "pg_ctl", "pg_isready"}

// Extractor unpacks archives into a Store. Safe for concurrent use across
// distinct releases; concurrent extraction of the same release is resolved by
// the atomic directory placement (one winner, identical results).
type Extractor struct {
	store *store.Store
	log   *slog.Logger
}

// NewExtractor creates an Extractor installing into st. If logger is nil,
// slog.Default() is used. Panics if st is nil.
func NewExtractor(st *store.Store, logger *slog.Logger) *Extractor {
	if st == nil {
		panic("pgenv: extractor requires a store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{store: st, log: logger}
}

// Extract unpacks the verified archive at archivePath, places it at the
// release's installation directory, and records the completed installation.
// On any failure the staging directory is discarded and nothing partial
// becomes visible.
func (e *Extractor) Extract(ctx context.Context, archivePath string, rel release.Release) (store.InstalledVersion, error) {
	key := rel.CacheKey()

	if err := fileutil.EnsureDir(e.store.Root()); err != nil {
		return store.InstalledVersion{}, fmt.Errorf("prepare store root: %w", err)
	}

	// Stage under the store root so the final rename stays on one filesystem.
	staging, err := os.MkdirTemp(e.store.Root(), ".extract-"+key+"-*")
	if err != nil {
		return store.InstalledVersion{}, fmt.Errorf("create staging dir: %w: %w", fileutil.ErrDiskWrite, err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := unpack(ctx, archivePath, rel.Format, staging); err != nil {
		return store.InstalledVersion{}, fmt.Errorf("extract %s: %w", key, err)
	}

	payloadRoot, err := findPayloadRoot(staging)
	if err != nil {
		return store.InstalledVersion{}, fmt.Errorf("extract %s: %w", key, err)
	}

	installDir := e.store.InstallDir(key)
	binaries, err := locateBinaries(payloadRoot, installDir)
	if err != nil {
		return store.InstalledVersion{}, fmt.Errorf("extract %s: %w", key, err)
	}

	if err := fileutil.PlaceDir(payloadRoot, installDir); err != nil {
		return store.InstalledVersion{}, fmt.Errorf("install %s: %w", key, err)
	}

	iv := store.InstalledVersion{
		Version:     rel.Version,
		Platform:    rel.Platform,
		InstallRoot: installDir,
		Binaries:    binaries,
	}
	if err := e.store.Record(iv); err != nil {
		return store.InstalledVersion{}, fmt.Errorf("record %s: %w", key, err)
	}

	e.log.Info("release installed", "release", key, "dir", installDir)
	return iv, nil
}

// findPayloadRoot resolves the directory holding bin/. Release archives
// either unpack bin/ at the top level or nest everything under a single
// distribution directory.
func findPayloadRoot(staging string) (string, error) {
	if hasBinDir(staging) {
		return staging, nil
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("scan staging dir: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		nested := filepath.Join(staging, entries[0].Name())
		if hasBinDir(nested) {
			return nested, nil
		}
	}
	return "", fmt.Errorf("%w: no bin directory found", ErrMissingExpectedBinary)
}

func hasBinDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "bin"))
	return err == nil && info.IsDir()
}

// locateBinaries checks that every expected utility exists under
// payloadRoot/bin and returns the logical-name to path map as it will look
// after the payload moves to installDir.
func locateBinaries(payloadRoot, installDir string) (map[string]string, error) {
	suffix := ""
	if runtime.GOOS == "windows" {
		suffix = ".exe"
	}

	binaries := make(map[string]string, len(expectedBinaries))
	for _, name := range expectedBinaries {
		staged := filepath.Join(payloadRoot, "bin", name+suffix)
		info, err := os.Stat(staged)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingExpectedBinary, name)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrMissingExpectedBinary, name)
		}
		binaries[name] = filepath.Join(installDir, "bin", name+suffix)
	}
	return binaries, nil
}
