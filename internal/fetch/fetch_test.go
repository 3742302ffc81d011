package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/giantswarm/pgenv/internal/fileutil"
	"github.com/giantswarm/pgenv/internal/release"
)

var archivePayload = []byte("not really a tarball, but it hashes fine")

// testRelease builds a release pointing at url with the correct digest for
// archivePayload unless digest overrides it.
func testRelease(t *testing.T, url, digest string) release.Release {
	t.Helper()
	if digest == "" {
		sum := sha256.Sum256(archivePayload)
		digest = hex.EncodeToString(sum[:])
	}
	return release.Release{
		Version:     semver.MustParse("16.4.0"),
		Platform:    "linux-amd64",
		DownloadURL: url,
		Checksum:    release.Checksum{Algorithm: "sha256", Digest: digest},
		Format:      release.FormatTarGz,
	}
}

func newTestFetcher(t *testing.T, client *http.Client) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Config{
		CacheDir:    t.TempDir(),
		Client:      client,
		RetryBudget: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetchDownloadsAndCaches(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	rel := testRelease(t, srv.URL, "")

	first, err := f.Fetch(context.Background(), rel)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), rel)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if first != second {
		t.Errorf("cache hit returned different path: %q vs %q", first, second)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (second fetch must hit cache)", got)
	}

	content, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read cached archive: %v", err)
	}
	if string(content) != string(archivePayload) {
		t.Error("cached archive content does not match payload")
	}
}

func TestFetchChecksumMismatchIsFatal(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	rel := testRelease(t, srv.URL, "deadbeef")

	_, err := f.Fetch(context.Background(), rel)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Fetch error = %v, want ErrChecksumMismatch", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (mismatch must not be retried)", got)
	}
	if _, statErr := os.Stat(f.ArchivePath(rel)); !os.IsNotExist(statErr) {
		t.Error("unverified archive must not appear in the cache")
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())

	if _, err := f.Fetch(context.Background(), testRelease(t, srv.URL, "")); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server received %d requests, want 2 (one failure, one retry)", got)
	}
}

func TestFetchClientErrorAborts(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())

	_, err := f.Fetch(context.Background(), testRelease(t, srv.URL, ""))
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Fetch error = %v, want NetworkError", err)
	}
	if netErr.Retryable {
		t.Error("404 must not be marked retryable")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (404 must not be retried)", got)
	}
}

func TestFetchCollapsesConcurrentDownloads(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	rel := testRelease(t, srv.URL, "")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.Fetch(context.Background(), rel)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server received %d requests, want 1 (concurrent fetches must collapse)", got)
	}
}

func TestFetchRejectsUnknownChecksumAlgorithm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	rel := testRelease(t, srv.URL, "")
	rel.Checksum.Algorithm = "md5"

	if _, err := f.Fetch(context.Background(), rel); !errors.Is(err, ErrUnsupportedChecksum) {
		t.Errorf("Fetch error = %v, want ErrUnsupportedChecksum", err)
	}
}

func TestFetchReportsDiskFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archivePayload)
	}))
	defer srv.Close()

	// A regular file where the cache directory should be makes cache
	// preparation fail before any download happens.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFetcher(Config{
		CacheDir:    filepath.Join(blocker, "cache"),
		Client:      srv.Client(),
		RetryBudget: time.Second,
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := f.Fetch(context.Background(), testRelease(t, srv.URL, "")); !errors.Is(err, fileutil.ErrDiskWrite) {
		t.Errorf("Fetch error = %v, want ErrDiskWrite", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(Config{}); err == nil {
		t.Error("NewFetcher should reject an empty CacheDir")
	}
}
