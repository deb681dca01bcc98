// Package stmtcache keeps a bounded set of compiled statements keyed by
// their SQL text and evicts the least recently used one when full.
package stmtcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/models"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("stmtcache: capacity must be positive")

// Preparer compiles SQL into a statement. *engine.Conn implements it.
type Preparer interface {
	Prepare(ctx context.Context, query string) (*engine.Stmt, error)
}

// Cache maps SQL text to compiled statements. Keys are compared
// byte-for-byte; no normalization is applied. It is not safe for
// concurrent use.
type Cache struct {
	lru      *simplelru.LRU[string, *engine.Stmt]
	capacity int
	prep     Preparer
	logger   *slog.Logger

	hits      int64
	misses    int64
	evictions int64
}

// New returns an empty cache holding at most capacity statements compiled
// by p. A nil logger discards output.
func New(capacity int, p Preparer, logger *slog.Logger) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Cache{capacity: capacity, prep: p, logger: logger}
	lru, err := simplelru.NewLRU[string, *engine.Stmt](capacity, c.evicted)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = lru
	return c, nil
}

// evicted finalizes a statement leaving the cache, whether it was pushed
// out by a newer entry or dropped by Purge.
func (c *Cache) evicted(query string, st *engine.Stmt) {
	if err := st.Close(); err != nil {
		c.logger.Warn("finalize evicted statement", "sql", query, "error", err)
	}
}

// Prepare returns the cached statement for query, compiling and inserting
// it on a miss. A hit makes the entry the most recently used. When the
// cache is full the least recently used entry is evicted and finalized.
// A compile failure leaves the cache and its stats unchanged.
func (c *Cache) Prepare(ctx context.Context, query string) (*engine.Stmt, error) {
	if st, ok := c.lru.Get(query); ok {
		c.hits++
		return st, nil
	}
	st, err := c.prep.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	c.misses++
	if c.lru.Add(query, st) {
		c.evictions++
		c.logger.Debug("statement evicted", "entries", c.lru.Len())
	}
	return st, nil
}

// Contains reports whether query is cached without touching recency.
func (c *Cache) Contains(query string) bool { return c.lru.Contains(query) }

// Len returns the number of cached statements.
func (c *Cache) Len() int { return c.lru.Len() }

// Cap returns the maximum number of cached statements.
func (c *Cache) Cap() int { return c.capacity }

// Keys returns the cached SQL texts, most recently used first.
func (c *Cache) Keys() []string {
	keys := c.lru.Keys()
	slices.Reverse(keys)
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Recent:    c.Keys(),
	}
}

// Purge finalizes and drops every cached statement.
func (c *Cache) Purge() {
	c.lru.Purge()
}
