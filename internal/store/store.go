package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrNotInstalled is returned when no completed installation exists for the
// requested cache key.
const ErrNotInstalled = sentinel.Error("version is not installed")

// markerName is the completion marker file inside each installation
// directory. Its presence is what makes an installation count; its JSON
// payload is the InstalledVersion metadata.
const markerName = "installed.json"

// InstalledVersion describes one completed installation: where it lives and
// where its utility binaries are.
type InstalledVersion struct {
	Version     *semver.Version   `json:"version"`
	Platform    string            `json:"platform"`
	InstallRoot string            `json:"install_root"`
	Binaries    map[string]string `json:"binaries"` // logical name -> absolute path
}

// CacheKey returns "<version>-<platform>", the identifier shared with the
// fetch cache and the installation directory name.
func (v InstalledVersion) CacheKey() string {
	return fmt.Sprintf("%s-%s", v.Version, v.Platform)
}

// Validate checks that the record is complete enough to act on.
func (v InstalledVersion) Validate() error {
	var errs []error
	if v.Version == nil {
		errs = append(errs, fmt.Errorf("Version must not be nil"))
	}
	if v.Platform == "" {
		errs = append(errs, fmt.Errorf("Platform must not be empty"))
	}
	if v.InstallRoot == "" {
		errs = append(errs, fmt.Errorf("InstallRoot must not be empty"))
	}
	if len(v.Binaries) == 0 {
		errs = append(errs, fmt.Errorf("Binaries must not be empty"))
	}
	return errors.Join(errs...)
}

// Store is the installation registry rooted at one directory. Safe for
// concurrent use.
type Store struct {
	root string
	log  *slog.Logger

	mu    sync.RWMutex
	index map[string]InstalledVersion
}

// NewStore creates a Store rooted at root. The directory is created on first
// write, not here. If logger is nil, slog.Default() is used. Panics if root
// is empty.
func NewStore(root string, logger *slog.Logger) *Store {
	if root == "" {
		panic("pgenv: store root must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:  root,
		log:   logger,
		index: make(map[string]InstalledVersion),
	}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// InstallDir returns the installation directory for a cache key, whether or
// not anything is installed there.
func (s *Store) InstallDir(cacheKey string) string {
	return filepath.Join(s.root, cacheKey)
}

// IsInstalled reports whether a completed installation exists for cacheKey.
func (s *Store) IsInstalled(cacheKey string) bool {
	_, err := s.Get(cacheKey)
	return err == nil
}

// Get returns the installation record for cacheKey, consulting disk when the
// in-memory index has no entry. Returns ErrNotInstalled when no completed
// installation exists.
func (s *Store) Get(cacheKey string) (InstalledVersion, error) {
	s.mu.RLock()
	iv, ok := s.index[cacheKey]
	s.mu.RUnlock()
	if ok {
		return iv, nil
	}

	iv, err := s.load(cacheKey)
	if err != nil {
		return InstalledVersion{}, err
	}

	s.mu.Lock()
	s.index[cacheKey] = iv
	s.mu.Unlock()
	return iv, nil
}

// Record persists iv as a completed installation. The marker file is written
// atomically; until the write completes the installation does not exist as
// far as the store is concerned.
func (s *Store) Record(iv InstalledVersion) error {
	if err := iv.Validate(); err != nil {
		return fmt.Errorf("invalid installation record: %w", err)
	}

	payload, err := json.MarshalIndent(iv, "", "  ")
	if err != nil {
		return fmt.Errorf("encode installation record: %w", err)
	}

	key := iv.CacheKey()
	markerPath := filepath.Join(s.InstallDir(key), markerName)
	if err := fileutil.AtomicWriteFile(markerPath, payload, 0o644); err != nil {
		return fmt.Errorf("write completion marker for %s: %w", key, err)
	}

	s.mu.Lock()
	s.index[key] = iv
	s.mu.Unlock()

	s.log.Info("installation recorded", "release", key, "dir", s.InstallDir(key))
	return nil
}

// Remove deletes the installation directory for cacheKey and drops it from
// the index. Removing an absent installation is not an error. The caller must
// ensure no running instance still uses the binaries.
func (s *Store) Remove(cacheKey string) error {
	s.mu.Lock()
	delete(s.index, cacheKey)
	s.mu.Unlock()

	dir := s.InstallDir(cacheKey)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove installation %s: %w", cacheKey, err)
	}

	s.log.Info("installation removed", "release", cacheKey, "dir", dir)
	return nil
}

// Installed returns all completed installations found under the store root,
// sorted by version ascending. Directories without a valid marker are
// skipped.
func (s *Store) Installed() ([]InstalledVersion, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan store root %s: %w", s.root, err)
	}

	var installed []InstalledVersion
	s.mu.Lock()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		iv, err := s.load(entry.Name())
		if err != nil {
			continue
		}
		s.index[entry.Name()] = iv
		installed = append(installed, iv)
	}
	s.mu.Unlock()

	sort.Slice(installed, func(i, j int) bool {
		return installed[i].Version.LessThan(installed[j].Version)
	})
	return installed, nil
}

// load reads and validates the completion marker for cacheKey from disk.
func (s *Store) load(cacheKey string) (InstalledVersion, error) {
	markerPath := filepath.Join(s.InstallDir(cacheKey), markerName)
	payload, err := os.ReadFile(markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return InstalledVersion{}, fmt.Errorf("%s: %w", cacheKey, ErrNotInstalled)
		}
		return InstalledVersion{}, fmt.Errorf("read completion marker for %s: %w", cacheKey, err)
	}

	var iv InstalledVersion
	if err := json.Unmarshal(payload, &iv); err != nil {
		s.log.Warn("completion marker corrupt, treating as not installed",
			"release", cacheKey, "error", err)
		return InstalledVersion{}, fmt.Errorf("%s: %w", cacheKey, ErrNotInstalled)
	}
	if err := iv.Validate(); err != nil {
		s.log.Warn("completion marker incomplete, treating as not installed",
			"release", cacheKey, "error", err)
		return InstalledVersion{}, fmt.Errorf("%s: %w", cacheKey, ErrNotInstalled)
	}
	return iv, nil
}
