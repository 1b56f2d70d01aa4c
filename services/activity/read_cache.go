package activity

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultReadCacheTTL is the window during which a read is recorded once per user
	DefaultReadCacheTTL = time.Hour
	// DefaultReadCacheSize bounds the number of remembered reads
	DefaultReadCacheSize = 5000

	publishedMarker = "published"
	lockStripes     = 64
)

// ReadCache remembers which (entity, user) reads were already published.
// Suppression is best effort: an entry evicted under pressure lets a duplicate through.
type ReadCache struct {
	entries *expirable.LRU[string, string]
	locks   [lockStripes]sync.Mutex
}

// NewReadCache creates a ReadCache holding at most size entries for ttl each
func NewReadCache(size int, ttl time.Duration) *ReadCache {
	if size <= 0 {
		size = DefaultReadCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultReadCacheTTL
	}
	return &ReadCache{
		entries: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func readKey(entityID, userID string) string {
	return entityID + "-" + userID
}

// Lock serializes the check, publish and mark sequence of one (entity, user) pair.
// The returned func releases the lock.
func (c *ReadCache) Lock(entityID, userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(readKey(entityID, userID)))
	mu := &c.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// ShouldPublish reports whether no read of the pair was published within the TTL
func (c *ReadCache) ShouldPublish(entityID, userID string) bool {
	_, found := c.entries.Get(readKey(entityID, userID))
	return !found
}

// MarkPublished records a successful publication of the pair
func (c *ReadCache) MarkPublished(entityID, userID string) {
	c.entries.Add(readKey(entityID, userID), publishedMarker)
}

// Len returns the number of remembered reads, expired ones included until cleanup
func (c *ReadCache) Len() int {
	return c.entries.Len()
}

// Purge forgets every remembered read
func (c *ReadCache) Purge() {
	c.entries.Purge()
}
