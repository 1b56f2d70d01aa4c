package settings

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/activity-pipeline/models"
)

// Defaults for the settings cache
const (
	DefaultCacheTTL  = 30 * time.Second
	DefaultCacheSize = 16
)

type cacheEntry struct {
	id         string
	settings   *models.Settings
	insertedAt time.Time
	element    *list.Element
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// Cache is an in-memory LRU cache with TTL for settings entities.
// Stored values are copied on the way in and out, so callers may mutate what they get.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64

	// bumped by Invalidate and Clear so loads that started earlier cannot be stored
	generation uint64
}

// NewCache creates a Cache; non-positive size or ttl fall back to the defaults
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached settings for id, or nil on a miss or expiry
func (c *Cache) Get(id string) *models.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(id)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return clone(entry.settings)
}

// Set stores settings under their id
func (c *Cache) Set(s *models.Settings) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(s)
}

// must be called with the lock held
func (c *Cache) setLocked(s *models.Settings) {
	if entry, exists := c.entries[s.ID]; exists {
		entry.settings = clone(s)
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		id:         s.ID,
		settings:   clone(s),
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(s.ID)
	c.entries[s.ID] = entry
}

// Generation returns the invalidation counter to pass to SetIfCurrent
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetIfCurrent stores s only if no invalidation happened since gen was read
func (c *Cache) SetIfCurrent(s *models.Settings, gen uint64) bool {
	if s == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.setLocked(s)
	return true
}

// Invalidate removes a single entry
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.removeEntry(id)
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// must be called with the lock held
func (c *Cache) removeEntry(id string) {
	if entry, exists := c.entries[id]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, id)
	}
}

// must be called with the lock held
func (c *Cache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	c.lruList.Remove(back)
	delete(c.entries, back.Value.(string))
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			c.removeEntry(id)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker runs CleanupExpired every interval until stopCh is closed
func (c *Cache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanupExpired()
			case <-stopCh:
				return
			}
		}
	}()
}

func clone(s *models.Settings) *models.Settings {
	if s == nil {
		return nil
	}
	out := *s
	out.ActivityListenersUsers = append([]string(nil), s.ActivityListenersUsers...)
	return &out
}
