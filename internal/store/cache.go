// ABOUTME: Process-wide cache of open tenant store handles
// ABOUTME: Lazy-opens with single-flight semantics and supports explicit eviction

package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CacheMetrics receives cache activity counters. Implementations must be
// safe for concurrent use.
type CacheMetrics interface {
	CacheHit()
	CacheMiss()
	StoreOpened()
	StoreEvicted()
}

// Cache maps store identifiers (filenames) to open handles. At most one
// handle is open per store identifier at any time: concurrent Get calls for
// the same uninitialized store share a single open-and-migrate via
// singleflight, so a new store's file and schema are created exactly once.
type Cache struct {
	dir        string
	migrations []Migration
	reserved   map[string]bool // store ids never served (the admin store)
	logger     *slog.Logger
	metrics    CacheMetrics

	mu      sync.Mutex
	handles map[string]*Handle
	group   singleflight.Group
}

// NewCache creates a cache serving store files under dir. Reserved names
// are refused by Get: the admin store is never addressable through the
// tenant routing path.
func NewCache(dir string, reserved ...string) *Cache {
	r := make(map[string]bool, len(reserved))
	for _, name := range reserved {
		r[name] = true
	}
	return &Cache{
		dir:        dir,
		migrations: Migrations(),
		reserved:   r,
		logger:     slog.Default().With("component", "store-cache"),
		handles:    make(map[string]*Handle),
	}
}

// SetMetrics attaches a metrics sink. Call before serving traffic.
func (c *Cache) SetMetrics(m CacheMetrics) {
	c.metrics = m
}

// Path returns the filesystem path a store identifier maps to.
func (c *Cache) Path(storeID string) string {
	return filepath.Join(c.dir, storeID)
}

// validStoreID rejects identifiers that would escape the data directory or
// address the admin store.
func (c *Cache) validStoreID(storeID string) error {
	if storeID == "" {
		return fmt.Errorf("%w: empty store id", ErrStoreUnavailable)
	}
	if strings.ContainsAny(storeID, "/\\") || storeID == "." || storeID == ".." {
		return fmt.Errorf("%w: invalid store id %q", ErrStoreUnavailable, storeID)
	}
	if c.reserved[storeID] {
		return fmt.Errorf("%w: reserved store id %q", ErrStoreUnavailable, storeID)
	}
	return nil
}

// Get returns the open handle for storeID, opening and migrating the store
// file first if needed. Two sequential Get calls without an intervening
// Evict return the identical handle. Open failures propagate without
// inserting anything into the cache.
func (c *Cache) Get(ctx context.Context, storeID string) (*Handle, error) {
	if err := c.validStoreID(storeID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if h, ok := c.handles[storeID]; ok {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.CacheHit()
		}
		return h, nil
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheMiss()
	}

	v, err, _ := c.group.Do(storeID, func() (any, error) {
		// Re-check: a concurrent caller may have finished the open while
		// this call waited on the flight group.
		c.mu.Lock()
		if h, ok := c.handles[storeID]; ok {
			c.mu.Unlock()
			return h, nil
		}
		c.mu.Unlock()

		h, err := openHandle(ctx, c.Path(storeID), c.migrations)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		c.mu.Lock()
		c.handles[storeID] = h
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.StoreOpened()
		}
		c.logger.Info("opened tenant store", "store_id", storeID)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Peek returns the cached handle without opening. The second return value
// reports presence.
func (c *Cache) Peek(storeID string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[storeID]
	return h, ok
}

// Evict closes and removes the handle for storeID. Calling with a key that
// is not cached is a no-op. The close completes before Evict returns, so a
// caller may safely delete the underlying file afterwards.
func (c *Cache) Evict(storeID string) error {
	c.mu.Lock()
	h, ok := c.handles[storeID]
	if ok {
		delete(c.handles, storeID)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if c.metrics != nil {
		c.metrics.StoreEvicted()
	}
	c.logger.Info("evicted tenant store", "store_id", storeID)

	if err := h.Close(); err != nil {
		return fmt.Errorf("closing store %s: %w", storeID, err)
	}
	return nil
}

// Len returns the number of open handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// CloseAll closes every open handle. Used at process shutdown; the cache
// should not be used afterwards.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]*Handle)
	c.mu.Unlock()

	var firstErr error
	for id, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store %s: %w", id, err)
		}
	}
	return firstErr
}
