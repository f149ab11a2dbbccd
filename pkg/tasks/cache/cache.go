// Package cache implements a TTL-based in-memory cache of resolved
// predefined tasks, keyed by name or name@version.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var log = logger.New("tasks:cache")

// DefaultTTL is used by NewWithDefaultTTL, matching the reference
// implementation's five-minute default.
const DefaultTTL = 5 * time.Minute

// entry is a cached task plus the bookkeeping needed to expire it.
type entry struct {
	task     schema.PredefinedTask
	loadedAt time.Time
	source   string
}

// Cache is a single global-TTL associative map from cache key to task.
// Expiration is lazy: Get checks the timestamp and reports a miss without
// evicting the entry; EvictExpired performs bulk pruning.
type Cache struct {
	mu    sync.Mutex
	tasks map[string]entry
	ttl   time.Duration
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{tasks: make(map[string]entry), ttl: ttl}
}

// NewWithDefaultTTL creates a cache using DefaultTTL.
func NewWithDefaultTTL() *Cache {
	return New(DefaultTTL)
}

// Key builds the cache key for a (name, optional version) pair.
func Key(name string, version string) string {
	if version == "" {
		return name
	}
	return fmt.Sprintf("%s@%s", name, version)
}

// Get returns the cached task for key, or (zero, false) if the key is
// absent or has expired. An expired entry is not evicted on Get — use
// EvictExpired for bulk pruning.
func (c *Cache) Get(key string) (schema.PredefinedTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tasks[key]
	if !ok {
		return schema.PredefinedTask{}, false
	}
	if time.Since(e.loadedAt) >= c.ttl {
		return schema.PredefinedTask{}, false
	}
	return e.task, true
}

// GetSource returns the source name that produced the cached entry for
// key, if present (regardless of expiration — callers that need freshness
// should call Get first).
func (c *Cache) GetSource(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tasks[key]
	if !ok {
		return "", false
	}
	return e.source, true
}

// Insert adds or replaces the entry for key.
func (c *Cache) Insert(key string, task schema.PredefinedTask, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tasks[key] = entry{task: task, loadedAt: time.Now(), source: source}
	log.LazyPrintf(func() string { return fmt.Sprintf("cached %s from %s", key, source) })
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make(map[string]entry)
}

// EvictExpired removes every entry whose TTL has elapsed and returns the
// count removed. Calling it twice in a row is idempotent: the second
// call always removes zero entries.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for k, e := range c.tasks {
		if now.Sub(e.loadedAt) >= c.ttl {
			delete(c.tasks, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently stored, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}
