package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirCreatesNested(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat created dir: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}

	// Second call on an existing directory is a no-op success.
	if err := EnsureDir(dir); err != nil {
		t.Errorf("EnsureDir on existing dir: %v", err)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "marker.json")
	if err := AtomicWriteFile(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("content = %q, want %q", got, `{"ok":true}`)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the final file", len(entries))
	}
}

func TestAtomicWriteFileOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f")
	if err := AtomicWriteFile(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}
}

func TestAtomicWriteFileReportsDiskFailure(t *testing.T) {
	t.Parallel()

	// A regular file where the parent directory should be makes every write
	// under it fail.
	blocker := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := AtomicWriteFile(filepath.Join(blocker, "marker.json"), []byte("x"), 0o644)
	if !errors.Is(err, ErrDiskWrite) {
		t.Errorf("AtomicWriteFile error = %v, want ErrDiskWrite", err)
	}
}

func TestPlaceDirMovesStaging(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "bin"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(root, "versions", "17.2")
	if err := PlaceDir(staging, dst); err != nil {
		t.Fatalf("PlaceDir: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "bin")); err != nil {
		t.Errorf("moved file missing: %v", err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging dir should be gone, stat err = %v", err)
	}
}

func TestPlaceDirKeepsExistingDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dst := filepath.Join(root, "dst")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "winner"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	staging := filepath.Join(root, "staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := PlaceDir(staging, dst); err != nil {
		t.Fatalf("PlaceDir with existing destination: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "winner")); err != nil {
		t.Errorf("existing destination content lost: %v", err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("losing staging dir should be discarded, stat err = %v", err)
	}
}
