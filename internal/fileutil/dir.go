package fileutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrDiskWrite is wrapped into every failed filesystem mutation in this
// package, so callers can distinguish disk failures from network or archive
// errors with errors.Is.
const ErrDiskWrite = sentinel.Error("disk write failed")

// EnsureDir creates a directory and all parent directories if they don't exist.
// Uses mode 0755. Returns nil if the directory already exists.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w: %w", path, ErrDiskWrite, err)
	}
	return nil
}

// EnsureDirForFile creates the parent directory of filePath if it does not
// already exist, ensuring the file can be created without a missing-directory error.
func EnsureDirForFile(filePath string) error {
	if err := EnsureDir(filepath.Dir(filePath)); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", filePath, err)
	}
	return nil
}

// PlaceDir atomically moves a fully-populated staging directory into its
// final location. If the destination already exists (a concurrent writer won
// the race), the staging directory is discarded and the existing destination
// is kept; both outcomes leave a complete directory at dst.
//
// The rename is atomic only when src and dst are on the same filesystem, so
// callers must stage under the same root as dst.
func PlaceDir(src, dst string) error {
	if err := EnsureDirForFile(dst); err != nil {
		return fmt.Errorf("prepare destination parent: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			// Lost the race to a concurrent writer; its result is equivalent.
			_ = os.RemoveAll(src)
			return nil
		}
		return fmt.Errorf("rename %s to %s: %w: %w", src, dst, ErrDiskWrite, err)
	}
	return nil
}
