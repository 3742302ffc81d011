package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a temp-file-then-rename sequence so
// that concurrent readers never observe a partially-written file. The temp
// file is created in the same directory as path (rename is only atomic within
// a single filesystem) and fsynced before the rename so a crash cannot leave
// the final name pointing at incomplete contents.
func AtomicWriteFile(path string, data []byte, mode os.FileMode) (retErr error) {
	if err := EnsureDirForFile(path); err != nil {
		return fmt.Errorf("prepare parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w: %w", ErrDiskWrite, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w: %w", ErrDiskWrite, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w: %w", ErrDiskWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w: %w", ErrDiskWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w: %w", ErrDiskWrite, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w: %w", path, ErrDiskWrite, err)
	}
	return nil
}
