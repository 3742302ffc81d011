package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giantswarm/pgenv/internal/sentinel"
)

// ErrCatalogUnavailable is returned when the release catalog cannot be
// fetched or decoded. The condition is usually transient (network, remote
// outage), so callers may retry.
const ErrCatalogUnavailable = sentinel.Error("release catalog unavailable")

// maxCatalogBytes bounds the catalog response body. A catalog is a few
// hundred KB at most; the limit protects against a misbehaving endpoint
// streaming unbounded data.
const maxCatalogBytes = 16 << 20

// defaultCatalogTimeout is the per-request timeout used when the caller's
// context carries no deadline.
const defaultCatalogTimeout = 30 * time.Second

// Source produces the list of known releases. Implementations must be safe
// for concurrent use.
type Source interface {
	Releases(ctx context.Context) ([]Release, error)
}

// HTTPSource fetches the release catalog from an HTTP(S) endpoint returning
// a JSON array of releases. It depends only on the decoded shape, not on any
// specific index schema beyond all fields being present.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource for the given catalog URL. If client is
// nil, http.DefaultClient is used. Panics if url is empty, since a source
// without an endpoint is a programmer error.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if url == "" {
		panic("pgenv: catalog url must not be empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

// Releases fetches and decodes the catalog. Entries failing validation are
// reported as a catalog failure rather than silently dropped: a catalog with
// missing checksums is a catalog we must not install from.
func (s *HTTPSource) Releases(ctx context.Context) ([]Release, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCatalogTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w: %w", s.url, ErrCatalogUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) // best-effort drain
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog %s: status %d: %w", s.url, resp.StatusCode, ErrCatalogUnavailable)
	}

	var releases []Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogBytes)).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w: %w", s.url, ErrCatalogUnavailable, err)
	}

	for _, r := range releases {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid catalog entry: %w: %w", ErrCatalogUnavailable, err)
		}
	}
	return releases, nil
}
