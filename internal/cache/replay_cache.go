package cache

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/observer"
)

// ReplayCache remembers (conversation, provider message id) pairs the
// responder has already evaluated, so a JetStream redelivery never triggers a
// second automated reply. Two bloom filter generations rotate when the active
// one fills up: a key survives at least one full generation after insertion,
// and a false positive only suppresses a reply, never duplicates one.
type ReplayCache struct {
	active    *bloom.BloomFilter
	previous  *bloom.BloomFilter
	mu        sync.RWMutex
	capacity  uint
	fpRate    float64
	inserted  uint
	hits      atomic.Int64
	misses    atomic.Int64
	companyID string
}

// NewReplayCache creates a rotating dual bloom filter cache sized for
// expectedKeys entries per generation.
func NewReplayCache(companyID string, expectedKeys uint, fpRate float64) *ReplayCache {
	return &ReplayCache{
		active:    bloom.NewWithEstimates(expectedKeys, fpRate),
		previous:  bloom.NewWithEstimates(expectedKeys, fpRate),
		capacity:  expectedKeys,
		fpRate:    fpRate,
		companyID: companyID,
	}
}

// generateKey creates a cache key from conversation and message id using FNV-1a hash
func (c *ReplayCache) generateKey(conversationID, messageID string) string {
	h := fnv.New64a()
	h.Write([]byte(conversationID + ":" + messageID))
	return fmt.Sprintf("%x", h.Sum64())
}

// Seen reports whether the pair was marked in the current or previous
// generation. A true result may be a bloom false positive.
func (c *ReplayCache) Seen(conversationID, messageID string) bool {
	key := c.generateKey(conversationID, messageID)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.active.TestString(key) || c.previous.TestString(key) {
		c.hits.Add(1)
		observer.IncCacheCheck(c.companyID, "bloom_replay", "possible_hit")
		return true
	}

	c.misses.Add(1)
	observer.IncCacheCheck(c.companyID, "bloom_replay", "miss")
	return false
}

// Mark records the pair in the active generation, rotating generations when
// the active filter reaches capacity.
func (c *ReplayCache) Mark(conversationID, messageID string) {
	key := c.generateKey(conversationID, messageID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inserted >= c.capacity {
		c.previous = c.active
		c.active = bloom.NewWithEstimates(c.capacity, c.fpRate)
		c.inserted = 0
		observer.IncCacheCheck(c.companyID, "bloom_replay", "rotate")
	}
	c.active.AddString(key)
	c.inserted++
}

// MarkSeen is a combined test-and-set: it returns true when the pair was
// already present and marks it otherwise. Callers use the return value to
// decide whether the responder may run.
func (c *ReplayCache) MarkSeen(conversationID, messageID string) bool {
	if c.Seen(conversationID, messageID) {
		return true
	}
	c.Mark(conversationID, messageID)
	return false
}

// Stats returns cache statistics.
func (c *ReplayCache) Stats() ReplayCacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.RLock()
	activeSize := c.active.ApproximatedSize()
	previousSize := c.previous.ApproximatedSize()
	c.mu.RUnlock()

	return ReplayCacheStats{
		Hits:         hits,
		Misses:       misses,
		HitRate:      hitRate,
		ActiveSize:   uint64(activeSize),
		PreviousSize: uint64(previousSize),
	}
}

type ReplayCacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	ActiveSize   uint64
	PreviousSize uint64
}
