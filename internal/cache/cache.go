// ABOUTME: TTL cache front for expensive read paths, backed by ristretto
// ABOUTME: Stores JSON-encoded values keyed by strings like "insights:hero:<user_id>"

package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache wraps ristretto with JSON value encoding and a default TTL.
// A miss and an expired entry look identical to callers.
type Cache struct {
	inner  *ristretto.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache that holds up to maxEntries values with the given
// default TTL.
func New(maxEntries int64, ttl time.Duration) (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Cache{
		inner:  inner,
		ttl:    ttl,
		logger: slog.Default().With("component", "cache"),
	}, nil
}

// Get loads the value for key into out. Returns false on a miss.
func (c *Cache) Get(key string, out any) bool {
	val, found := c.inner.Get(key)
	if !found {
		return false
	}

	data, ok := val.([]byte)
	if !ok {
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		c.inner.Del(key)
		return false
	}
	return true
}

// Set stores value under key with the default TTL. Errors are logged and
// swallowed; the cache is best-effort. Ristretto admits writes
// asynchronously, so Set waits for the buffer to drain to keep
// read-after-write behavior predictable.
func (c *Cache) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to encode cache value", "key", key, "error", err)
		return
	}
	c.inner.SetWithTTL(key, data, 1, c.ttl)
	c.inner.Wait()
}

// Delete removes the value for key.
func (c *Cache) Delete(key string) {
	c.inner.Del(key)
}

// Wait blocks until pending writes are applied. Ristretto admits entries
// asynchronously; tests call this before asserting on Get.
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.inner.Close()
}
