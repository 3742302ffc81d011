package pgenv

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/giantswarm/pgenv/internal/platform"
)

// The singleton makes root-level tests order-sensitive; they reset it
// explicitly and therefore must not run in parallel with each other.

// requirePanicContains asserts that fn panics with a message containing want.
func requirePanicContains(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got no panic", want)
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, want) {
			t.Fatalf("panic message %q does not contain %q", msg, want)
		}
	}()
	fn()
}

func TestOptionsPanicOnInvalidInput(t *testing.T) {
	tests := map[string]struct {
		fn   func()
		want string
	}{
		"empty catalog URL":       {fn: func() { WithCatalogURL("") }, want: "catalog URL"},
		"empty base dir":          {fn: func() { WithBaseDir("") }, want: "base directory"},
		"zero catalog TTL":        {fn: func() { WithCatalogTTL(0) }, want: "catalog TTL"},
		"negative retry budget":   {fn: func() { WithRetryBudget(-time.Second) }, want: "retry budget"},
		"nil http client":         {fn: func() { WithHTTPClient(nil) }, want: "HTTP client"},
		"zero port":               {fn: func() { WithPort(0) }, want: "port"},
		"port too large":          {fn: func() { WithPort(70000) }, want: "port"},
		"empty superuser":         {fn: func() { WithSuperuser("") }, want: "superuser"},
		"empty password":          {fn: func() { WithPassword("") }, want: "password"},
		"empty locale":            {fn: func() { WithLocale("") }, want: "locale"},
		"zero readiness timeout":  {fn: func() { WithReadinessTimeout(0) }, want: "readiness timeout"},
		"zero readiness interval": {fn: func() { WithReadinessInterval(0) }, want: "readiness interval"},
		"zero stop timeout":       {fn: func() { WithStopTimeout(0) }, want: "stop timeout"},
		"zero grace period":       {fn: func() { WithStopGracePeriod(0) }, want: "stop grace period"},
		"unknown data policy":     {fn: func() { WithDataPolicy(DataPolicy(99)) }, want: "data policy"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			requirePanicContains(t, tc.want, tc.fn)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultEnvironmentConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration must validate: %v", err)
	}
}

func TestNewEnvironmentReturnsSingleton(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	first, err := NewEnvironment(WithBaseDir(t.TempDir()))
	if err != nil {
		t.Fatalf("first NewEnvironment: %v", err)
	}
	second, err := NewEnvironment(WithBaseDir(t.TempDir()))
	if err != nil {
		t.Fatalf("second NewEnvironment: %v", err)
	}
	if first != second {
		t.Error("NewEnvironment must return the same singleton on every call")
	}
}

// newCatalogServer serves a one-release catalog and the matching archive.
func newCatalogServer(t *testing.T, version string) *httptest.Server {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, bin := range []string{"initdb", "postgres", "pg_ctl", "pg_isready"} {
		body := "#!/bin/sh\nexit 0\n"
		header := &tar.Header{Name: "bin/" + bin, Mode: 0o755, Size: int64(len(body))}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("write tar body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	archive := buf.Bytes()
	sum := sha256.Sum256(archive)
	digest := hex.EncodeToString(sum[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		entry := map[string]any{
			"version":  version,
			"platform": platform.Current().String(),
			"url":      fmt.Sprintf("http://%s/archive", r.Host),
			"checksum": map[string]string{"algorithm": "sha256", "digest": digest},
			"format":   "tar.gz",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]any{entry})
	})
	mux.HandleFunc("/archive", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEnvironmentInstallThroughPublicSurface(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	srv := newCatalogServer(t, "16.4.0")
	env, err := NewEnvironment(
		WithBaseDir(t.TempDir()),
		WithCatalogURL(srv.URL+"/catalog"),
		WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	ctx := context.Background()
	t.Cleanup(func() { _ = env.Shutdown(ctx) })

	installed, err := env.Install(ctx, "16")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if installed.Version.String() != "16.4.0" {
		t.Errorf("installed version = %s, want 16.4.0", installed.Version)
	}

	listed, err := env.Installed()
	if err != nil {
		t.Fatalf("Installed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Installed lists %d versions, want 1", len(listed))
	}

	inst, err := env.NewInstance(installed, WithPassword("hunter2"), WithDataPolicy(DataKeep))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if inst.State() != StateStopped {
		t.Errorf("new instance state = %s, want stopped", inst.State())
	}
	if inst.Password() != "hunter2" {
		t.Errorf("Password = %q, want configured password", inst.Password())
	}

	if err := env.Uninstall(installed); !errors.Is(err, ErrVersionInUse) {
		t.Errorf("Uninstall with live instance = %v, want ErrVersionInUse", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := env.Uninstall(installed); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
}

func TestInstallRejectsBadRequirement(t *testing.T) {
	resetForTesting()
	t.Cleanup(resetForTesting)

	env, err := NewEnvironment(WithBaseDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if _, err := env.Install(context.Background(), "not a version"); err == nil {
		t.Error("Install should reject an unparsable version requirement")
	}
}
