package fetch

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/release"
)

// DefaultRetryBudget is the total time spent retrying transient download
// failures for one release before giving up.
const DefaultRetryBudget = 2 * time.Minute

// cacheLockRetryInterval is the poll interval while waiting for another
// process to finish downloading the same release.
const cacheLockRetryInterval = 50 * time.Millisecond

// Config carries the Fetcher's dependencies and policy.
type Config struct {
	// CacheDir is where verified archives are stored, one file per release
	// cache key. Created on demand.
	CacheDir string

	// Client performs the downloads. Nil means http.DefaultClient.
	Client *http.Client

	// RetryBudget bounds the total time spent retrying one fetch. Zero or
	// negative means DefaultRetryBudget.
	RetryBudget time.Duration

	// Logger for cache and retry events. Nil means slog.Default().
	Logger *slog.Logger
}

// Validate checks the configuration, accumulating all violations.
func (c Config) Validate() error {
	var errs []error
	if c.CacheDir == "" {
		errs = append(errs, fmt.Errorf("CacheDir must not be empty"))
	}
	return errors.Join(errs...)
}

// Fetcher downloads release archives into a shared on-disk cache.
//
// A verified archive already in the cache is returned without network I/O.
// Concurrent fetches of the same release are collapsed: in-process via a
// singleflight group keyed by cache key, across processes via an exclusive
// file lock held for the duration of download and verification. The cache
// only ever contains fully verified archives; downloads land in a temp file
// and are renamed in after the checksum passes.
type Fetcher struct {
	cacheDir    string
	client      *http.Client
	retryBudget time.Duration
	log         *slog.Logger

	group singleflight.Group
}

// NewFetcher creates a Fetcher from cfg.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	budget := cfg.RetryBudget
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cacheDir:    cfg.CacheDir,
		client:      client,
		retryBudget: budget,
		log:         logger,
	}, nil
}

// Fetch returns the path of the verified archive for rel, downloading it if
// the cache has no verified copy. Concurrent calls for the same release share
// one download.
func (f *Fetcher) Fetch(ctx context.Context, rel release.Release) (string, error) {
	v, err, _ := f.group.Do(rel.CacheKey(), func() (any, error) {
		return f.fetch(ctx, rel)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ArchivePath returns where the archive for rel lives in the cache, whether
// or not it has been fetched yet.
func (f *Fetcher) ArchivePath(rel release.Release) string {
	return filepath.Join(f.cacheDir, rel.CacheKey()+"."+string(rel.Format))
}

func (f *Fetcher) fetch(ctx context.Context, rel release.Release) (string, error) {
	dst := f.ArchivePath(rel)

	// Fast path: a verified archive needs neither lock nor network.
	if f.cacheHit(dst, rel) {
		return dst, nil
	}

	if err := fileutil.EnsureDir(f.cacheDir); err != nil {
		return "", fmt.Errorf("prepare archive cache: %w", err)
	}

	lock, err := acquireCacheLock(ctx, dst+".lock")
	if err != nil {
		return "", err
	}
	defer releaseCacheLock(f.log, lock)

	// Another process may have completed the download while this one waited
	// on the lock.
	if f.cacheHit(dst, rel) {
		return dst, nil
	}

	op := func() error {
		return classify(f.download(ctx, rel, dst))
	}
	if err := backoff.Retry(op, newRetryPolicy(ctx, f.retryBudget)); err != nil {
		return "", err
	}

	f.log.Info("archive fetched", "release", rel.CacheKey(), "path", dst)
	return dst, nil
}

// cacheHit reports whether dst holds a verified archive for rel. A corrupt
// cache entry is removed so the caller re-downloads it.
func (f *Fetcher) cacheHit(dst string, rel release.Release) bool {
	if _, err := os.Stat(dst); err != nil {
		return false
	}
	if err := verifyFile(dst, rel.Checksum); err != nil {
		f.log.Warn("discarding corrupt cached archive", "path", dst, "error", err)
		_ = os.Remove(dst)
		return false
	}
	f.log.Debug("archive cache hit", "release", rel.CacheKey(), "path", dst)
	return true
}

// download performs one GET attempt: stream into a temp file while hashing,
// verify the digest, then rename into the cache. Any failure removes the temp
// file so the cache never holds a partial or unverified archive.
func (f *Fetcher) download(ctx context.Context, rel release.Release, dst string) (retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rel.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{URL: rel.DownloadURL, Err: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &NetworkError{URL: rel.DownloadURL, Status: resp.StatusCode, Retryable: true}
	default:
		return &NetworkError{URL: rel.DownloadURL, Status: resp.StatusCode, Retryable: false}
	}

	digest, err := newDigest(rel.Checksum.Algorithm)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.cacheDir, ".download-*")
	if err != nil {
		return fmt.Errorf("create download temp file: %w: %w", fileutil.ErrDiskWrite, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(io.MultiWriter(tmp, digest), resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{URL: rel.DownloadURL, Err: err, Retryable: true}
	}

	got := hex.EncodeToString(digest.Sum(nil))
	if !strings.EqualFold(got, rel.Checksum.Digest) {
		return &ChecksumMismatchError{
			URL:       rel.DownloadURL,
			Algorithm: rel.Checksum.Algorithm,
			Want:      strings.ToLower(rel.Checksum.Digest),
			Got:       got,
		}
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync downloaded archive: %w: %w", fileutil.ErrDiskWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close downloaded archive: %w: %w", fileutil.ErrDiskWrite, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("place archive in cache: %w: %w", fileutil.ErrDiskWrite, err)
	}
	return nil
}

// verifyFile hashes the file at path and compares against sum.
func verifyFile(path string, sum release.Checksum) error {
	digest, err := newDigest(sum.Algorithm)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive for verification: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(digest, file); err != nil {
		return fmt.Errorf("hash archive %s: %w", path, err)
	}

	got := hex.EncodeToString(digest.Sum(nil))
	if !strings.EqualFold(got, sum.Digest) {
		return &ChecksumMismatchError{
			URL:       path,
			Algorithm: sum.Algorithm,
			Want:      strings.ToLower(sum.Digest),
			Got:       got,
		}
	}
	return nil
}

// newDigest returns a fresh hasher for the given checksum algorithm.
func newDigest(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChecksum, algorithm)
	}
}

// acquireCacheLock takes the exclusive cross-process lock guarding one cache
// entry, polling until acquired or the context is done.
func acquireCacheLock(ctx context.Context, lockPath string) (*flock.Flock, error) {
	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, cacheLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock %s: %w", lockPath, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire cache lock %s: %w", lockPath, ctx.Err())
		}
		return nil, fmt.Errorf("acquire cache lock %s: lock not acquired", lockPath)
	}
	return fl, nil
}

// releaseCacheLock releases and closes the lock. The lock file stays on disk;
// removing it could invalidate a lock another process just acquired.
func releaseCacheLock(logger *slog.Logger, fl *flock.Flock) {
	if fl != nil {
		if err := fl.Close(); err != nil {
			logger.Debug("failed to release cache lock", "path", fl.Path(), "err", err)
		}
	}
}
