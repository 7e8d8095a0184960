// Package cache stores raw content API payloads with TTL and
// stale-while-revalidate windows.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Entry is one cached payload.
type Entry struct {
	Data      []byte
	StaleAt   time.Time // After this the payload is served but should be refreshed
	ExpiresAt time.Time // After this the payload is gone
}

// IsExpired reports whether the entry is past its expiry
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// IsStale reports whether the entry is inside its stale window
func (e *Entry) IsStale() bool {
	now := time.Now()
	return now.After(e.StaleAt) && now.Before(e.ExpiresAt)
}

// Cache is implemented by the memory and SQLite stores.
type Cache interface {
	// Get returns (data, found, stale).
	Get(key string) ([]byte, bool, bool)

	// Set stores data that is fresh for ttl and then expires.
	Set(key string, data []byte, ttl time.Duration)

	// SetWithStale stores data that turns stale after staleAfter and
	// expires after expireAfter.
	SetWithStale(key string, data []byte, staleAfter, expireAfter time.Duration)

	Invalidate(key string)
	InvalidateAll()

	// Stats returns hit and miss counters since creation.
	Stats() Stats

	Close() error
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stale  int64 `json:"stale"`
}

type counters struct {
	hits, misses, stale atomic.Int64
}

func (c *counters) record(found, stale bool) {
	switch {
	case !found:
		c.misses.Add(1)
	case stale:
		c.stale.Add(1)
		c.hits.Add(1)
	default:
		c.hits.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Stale: c.stale.Load()}
}

// MemoryCache keeps payloads in process memory and sweeps expired entries
// once per minute.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	stats   counters

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a memory cache and starts its sweeper
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]*Entry),
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) Get(key string) ([]byte, bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && entry.IsExpired() {
		c.Invalidate(key)
		ok = false
	}
	if !ok {
		c.stats.record(false, false)
		return nil, false, false
	}

	stale := entry.IsStale()
	c.stats.record(true, stale)
	return entry.Data, true, stale
}

func (c *MemoryCache) Set(key string, data []byte, ttl time.Duration) {
	c.SetWithStale(key, data, ttl, ttl)
}

func (c *MemoryCache) SetWithStale(key string, data []byte, staleAfter, expireAfter time.Duration) {
	now := time.Now()
	entry := &Entry{
		Data:      data,
		StaleAt:   now.Add(staleAfter),
		ExpiresAt: now.Add(expireAfter),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *MemoryCache) Stats() Stats {
	return c.stats.snapshot()
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the sweeper. Safe to call multiple times
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) Close() error {
	c.Stop()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Open returns the cache store named by kind: "memory" (default) or "sqlite".
func Open(kind, path string, log *zap.Logger) (Cache, error) {
	switch kind {
	case "", "memory":
		return NewMemoryCache(), nil
	case "sqlite":
		if path == "" {
			path = "engagesite-cache.db"
		}
		return NewSQLiteCache(path, log)
	default:
		return nil, fmt.Errorf("unknown cache store %q", kind)
	}
}
