package extract

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/release"
)

// unpack decodes the archive at path into dst according to format. The
// format comes from catalog metadata; content is never sniffed.
func unpack(ctx context.Context, path string, format release.Format, dst string) error {
	switch format {
	case release.FormatTarGz:
		return unpackTarGz(ctx, path, dst)
	case release.FormatTarXz:
		return unpackTarXz(ctx, path, dst)
	case release.FormatZip:
		return unpackZip(ctx, path, dst)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func unpackTarGz(ctx context.Context, path, dst string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer func() { _ = gz.Close() }()

	return untar(ctx, gz, dst)
}

func unpackTarXz(ctx context.Context, path, dst string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	xzr, err := xz.NewReader(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	return untar(ctx, xzr, dst)
}

// untar writes a tar stream into dst, preserving file modes (including exec
// bits) and symlinks. Entries escaping dst are rejected.
func untar(ctx context.Context, r io.Reader, dst string) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}

		target, err := entryPath(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", header.Name, err)
			}
		case tar.TypeSymlink:
			if !filepath.IsLocal(header.Linkname) {
				return fmt.Errorf("%w: symlink %s escapes archive root", ErrCorruptArchive, header.Name)
			}
			if err := fileutil.EnsureDirForFile(target); err != nil {
				return fmt.Errorf("prepare symlink %s: %w", header.Name, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", header.Name, err)
			}
		default:
			// Hard links, devices and the like do not occur in server release
			// archives; skip rather than fail.
		}
	}
}

func unpackZip(ctx context.Context, path, dst string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer func() { _ = zr.Close() }()

	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := entryPath(dst, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, entry.Mode().Perm()); err != nil {
				return fmt.Errorf("create directory %s: %w", entry.Name, err)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		err = writeEntry(target, rc, entry.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("write %s: %w", entry.Name, err)
		}
	}
	return nil
}

// entryPath validates an archive member name and resolves it under dst.
func entryPath(dst, name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: entry %q escapes archive root", ErrCorruptArchive, name)
	}
	return filepath.Join(dst, filepath.FromSlash(name)), nil
}

// writeEntry creates the file at target with the given mode and copies r
// into it.
func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := fileutil.EnsureDirForFile(target); err != nil {
		return err
	}

	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
