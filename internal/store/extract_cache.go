package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DefaultMemoryEntries sizes the in-memory front of the extraction cache.
const DefaultMemoryEntries = 256

// ExtractCache persists extracted PDF text keyed by file path and
// modification time, so unchanged files are not parsed again after a
// rebuild or restart. Values are opaque blobs. A nil *ExtractCache is a
// valid cache that never hits.
type ExtractCache struct {
	db     *sql.DB
	mem    *lru.Cache[string, cachedBlob]
	logger *slog.Logger
}

type cachedBlob struct {
	modified int64
	data     []byte
}

// OpenExtractCache opens the cache database at path, creating it if
// needed. An empty path keeps the cache in memory.
func OpenExtractCache(path string, memoryEntries int, logger *slog.Logger) (*ExtractCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if memoryEntries <= 0 {
		memoryEntries = DefaultMemoryEntries
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open extraction cache: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and avoids
	// writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS extractions (
		path      TEXT PRIMARY KEY,
		modified  INTEGER NOT NULL,
		data      BLOB NOT NULL,
		stored_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize extraction cache: %w", err)
	}

	mem, err := lru.New[string, cachedBlob](memoryEntries)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &ExtractCache{db: db, mem: mem, logger: logger}, nil
}

// Get returns the blob stored for path if it was stored for the same
// modification time.
func (c *ExtractCache) Get(ctx context.Context, path string, modified int64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	if b, ok := c.mem.Get(path); ok {
		if b.modified == modified {
			return b.data, true
		}
		return nil, false
	}

	var (
		stored int64
		data   []byte
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT modified, data FROM extractions WHERE path = ?`, path).Scan(&stored, &data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Debug("extract_cache_read_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	c.mem.Add(path, cachedBlob{modified: stored, data: data})
	if stored != modified {
		return nil, false
	}
	return data, true
}

// Put stores the blob for path, replacing any earlier version.
func (c *ExtractCache) Put(ctx context.Context, path string, modified int64, data []byte) error {
	if c == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO extractions (path, modified, data, stored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET modified = excluded.modified, data = excluded.data, stored_at = excluded.stored_at`,
		path, modified, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store extraction for %s: %w", path, err)
	}
	c.mem.Add(path, cachedBlob{modified: modified, data: data})
	return nil
}

// Invalidate drops any blob stored for path.
func (c *ExtractCache) Invalidate(ctx context.Context, path string) error {
	if c == nil {
		return nil
	}
	c.mem.Remove(path)
	if _, err := c.db.ExecContext(ctx, `DELETE FROM extractions WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to invalidate extraction for %s: %w", path, err)
	}
	return nil
}

// Len returns the number of persisted extractions.
func (c *ExtractCache) Len(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extractions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count extractions: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *ExtractCache) Close() error {
	if c == nil {
		return nil
	}
	c.mem.Purge()
	return c.db.Close()
}
