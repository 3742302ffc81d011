package release

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/pgenv/internal/fileutil"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

// DefaultCatalogTTL is how long a cached catalog snapshot is served before
// the underlying source is consulted again.
const DefaultCatalogTTL = 24 * time.Hour

// CachedSource wraps a Source with an on-disk SQLite cache with a bounded
// time-to-live. A fresh snapshot is served without touching the network; a
// stale or missing snapshot triggers a fetch from the wrapped source, whose
// result replaces the snapshot. If the fetch fails and a stale snapshot
// exists, the stale snapshot is served with a warning: an outdated catalog
// beats no catalog for resolution purposes.
//
// The database is opened lazily on first use and kept open for the life of
// the process. Safe for concurrent use; SQLite serializes writers and the
// single-connection pool avoids lock contention from this process.
type CachedSource struct {
	src  Source
	path string
	ttl  time.Duration
	log  *slog.Logger
	now  func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewCachedSource wraps src with a SQLite-backed TTL cache at dbPath. A
// non-positive ttl falls back to DefaultCatalogTTL. If logger is nil,
// slog.Default() is used.
func NewCachedSource(src Source, dbPath string, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if src == nil {
		panic("pgenv: cached source requires an underlying source")
	}
	if dbPath == "" {
		panic("pgenv: catalog cache path must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{src: src, path: dbPath, ttl: ttl, log: logger, now: time.Now}
}

// Close releases the underlying database handle. Safe to call when the cache
// was never opened.
func (c *CachedSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// open lazily opens the cache database and creates the snapshot table.
// Callers must hold c.mu.
func (c *CachedSource) open(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}

	if err := fileutil.EnsureDirForFile(c.path); err != nil {
		return nil, fmt.Errorf("prepare catalog cache dir: %w", err)
	}

	// WAL mode plus a busy timeout so concurrent processes sharing the cache
	// file do not fail on transient lock contention.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)", c.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog cache %s: %w", c.path, err)
	}
	// A short-lived bookkeeping session, not a pool.
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS catalog_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fetched_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog cache schema: %w", err)
	}

	c.db = db
	return db, nil
}

// Releases implements Source.
func (c *CachedSource) Releases(ctx context.Context) ([]Release, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.open(ctx)
	if err != nil {
		// Cache unavailability must not block resolution; fall through to the
		// underlying source directly.
		c.log.Warn("catalog cache unavailable, bypassing", "path", c.path, "error", err)
		return c.src.Releases(ctx)
	}

	cached, fetchedAt, found := c.readSnapshot(ctx, db)
	if found && c.now().Sub(fetchedAt) <= c.ttl {
		return cached, nil
	}

	fresh, err := c.src.Releases(ctx)
	if err != nil {
		if found {
			c.log.Warn("catalog refresh failed, serving stale snapshot",
				"age", c.now().Sub(fetchedAt), "error", err)
			return cached, nil
		}
		return nil, err
	}

	if err := c.writeSnapshot(ctx, db, fresh); err != nil {
		// A failed cache write only costs a future network round trip.
		c.log.Warn("catalog cache write failed", "error", err)
	}
	return fresh, nil
}

// readSnapshot returns the cached releases and their fetch time, or
// found=false when no usable snapshot exists. Decode failures are treated as
// a missing snapshot.
func (c *CachedSource) readSnapshot(ctx context.Context, db *sql.DB) ([]Release, time.Time, bool) {
	var fetchedUnix int64
	var payload []byte
	err := db.QueryRowContext(ctx,
		`SELECT fetched_at, payload FROM catalog_snapshot WHERE id = 1`,
	).Scan(&fetchedUnix, &payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("catalog cache read failed", "error", err)
		}
		return nil, time.Time{}, false
	}

	var releases []Release
	if err := json.Unmarshal(payload, &releases); err != nil {
		c.log.Warn("catalog cache payload corrupt, ignoring", "error", err)
		return nil, time.Time{}, false
	}
	return releases, time.Unix(fetchedUnix, 0), true
}

// writeSnapshot replaces the cached snapshot with the given releases.
func (c *CachedSource) writeSnapshot(ctx context.Context, db *sql.DB, releases []Release) error {
	payload, err := json.Marshal(releases)
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO catalog_snapshot (id, fetched_at, payload) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET fetched_at = excluded.fetched_at, payload = excluded.payload`,
		c.now().Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("store catalog snapshot: %w", err)
	}
	return nil
}
