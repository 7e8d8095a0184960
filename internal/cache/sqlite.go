package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS payloads (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	stale_at   INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`

// SQLiteCache persists payloads in a SQLite file so warm content survives
// restarts. Storage errors are logged and treated as misses.
type SQLiteCache struct {
	db    *sql.DB
	log   *zap.Logger
	stats counters
}

// NewSQLiteCache opens (or creates) the cache database at path.
func NewSQLiteCache(path string, log *zap.Logger) (*SQLiteCache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	c := &SQLiteCache{db: db, log: log}
	c.purgeExpired()
	return c, nil
}

func (c *SQLiteCache) Get(key string) ([]byte, bool, bool) {
	var (
		data      []byte
		staleAt   int64
		expiresAt int64
	)
	err := c.db.QueryRow(
		`SELECT data, stale_at, expires_at FROM payloads WHERE key = ?`, key,
	).Scan(&data, &staleAt, &expiresAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.stats.record(false, false)
		return nil, false, false
	}

	entry := Entry{
		Data:      data,
		StaleAt:   time.UnixMilli(staleAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}
	if entry.IsExpired() {
		c.Invalidate(key)
		c.stats.record(false, false)
		return nil, false, false
	}

	stale := entry.IsStale()
	c.stats.record(true, stale)
	return entry.Data, true, stale
}

func (c *SQLiteCache) Set(key string, data []byte, ttl time.Duration) {
	c.SetWithStale(key, data, ttl, ttl)
}

func (c *SQLiteCache) SetWithStale(key string, data []byte, staleAfter, expireAfter time.Duration) {
	now := time.Now()
	_, err := c.db.Exec(
		`INSERT INTO payloads (key, data, stale_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data,
		   stale_at = excluded.stale_at, expires_at = excluded.expires_at`,
		key, data, now.Add(staleAfter).UnixMilli(), now.Add(expireAfter).UnixMilli(),
	)
	if err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *SQLiteCache) Invalidate(key string) {
	if _, err := c.db.Exec(`DELETE FROM payloads WHERE key = ?`, key); err != nil {
		c.log.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *SQLiteCache) InvalidateAll() {
	if _, err := c.db.Exec(`DELETE FROM payloads`); err != nil {
		c.log.Warn("cache clear failed", zap.Error(err))
	}
}

func (c *SQLiteCache) Stats() Stats {
	return c.stats.snapshot()
}

// Len returns the number of stored payloads
func (c *SQLiteCache) Len() int {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM payloads`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) purgeExpired() {
	res, err := c.db.Exec(`DELETE FROM payloads WHERE expires_at < ?`, time.Now().UnixMilli())
	if err != nil {
		c.log.Warn("cache purge failed", zap.Error(err))
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.log.Debug("purged expired payloads", zap.Int64("rows", n))
	}
}
