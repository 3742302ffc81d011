package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceDecodesCatalog(t *testing.T) {
	t.Parallel()

	const body = `[
		{
			"version": "16.4.0",
			"platform": "linux-amd64",
			"url": "https://example.test/postgres-16.4.0-linux-amd64.tar.gz",
			"checksum": {"algorithm": "sha256", "digest": "ab12"},
			"format": "tar.gz"
		}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, srv.Client())
	releases, err := src.Releases(context.Background())
	if err != nil {
		t.Fatalf("Releases: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1", len(releases))
	}
	got := releases[0]
	if got.Version.String() != "16.4.0" {
		t.Errorf("version = %s, want 16.4.0", got.Version)
	}
	if got.Format != FormatTarGz {
		t.Errorf("format = %q, want tar.gz", got.Format)
	}
	if got.Checksum.Algorithm != "sha256" || got.Checksum.Digest != "ab12" {
		t.Errorf("checksum = %+v, want sha256/ab12", got.Checksum)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		handler http.HandlerFunc
	}{
		"server error": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		"malformed json": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
		},
		"entry missing checksum": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[{"version":"16.4.0","platform":"linux-amd64","url":"u","checksum":{},"format":"tar.gz"}]`))
			},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			src := NewHTTPSource(srv.URL, srv.Client())
			_, err := src.Releases(context.Background())
			if !errors.Is(err, ErrCatalogUnavailable) {
				t.Errorf("Releases error = %v, want ErrCatalogUnavailable", err)
			}
		})
	}
}
