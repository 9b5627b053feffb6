package cache

import (
	"sync"
	"time"

	"uwhoisd/internal/data"
)

const (
	// DefaultMaxSize is the default number of queue occurrences an LFU cache may hold.
	DefaultMaxSize = 256
	// DefaultMaxAge is the default age after which an LFU occurrence expires.
	DefaultMaxAge = 300 * time.Second
)

// LFU is a bounded cache with frequency-weighted eviction and age-based expiry.
//
// Every write, and every read hit, appends a timestamped occurrence of the key to an eviction
// queue and increments the key's reference count. Eviction pops occurrences from the front of the
// queue and decrements the matching count; a key disappears once its count reaches zero. Keys that
// are read often therefore hold several occurrences and survive proportionally more evictions.
// The queue, not the number of distinct keys, is bounded by the maximum size.
type LFU struct {
	entries map[string]*lfuEntry
	queue   *data.OccurrenceQueue
	maxSize int
	maxAge  time.Duration
	clock   func() time.Time
	mutex   sync.Mutex
}

// lfuEntry is a cached value with the number of its occurrences on the eviction queue.
type lfuEntry struct {
	count int
	value string
}

// NewLFU creates an LFU cache. Non-positive bounds fall back to the defaults.
func NewLFU(maxSize int, maxAge time.Duration) *LFU {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	return &LFU{
		entries: make(map[string]*lfuEntry),
		queue:   data.NewOccurrenceQueue(maxSize),
		maxSize: maxSize,
		maxAge:  maxAge,
		clock:   time.Now,
	}
}

// Get sweeps expired occurrences, then looks up key. A hit re-inserts the value, adding one more
// occurrence of the key to the back of the queue.
func (c *LFU) Get(key string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.evictExpired()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}

	c.set(key, entry.value)

	return entry.value, true
}

// Set stores value under key, evicting the oldest queue occurrence first if the queue is full.
func (c *LFU) Set(key string, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.set(key, value)
}

// EvictOne removes the occurrence at the front of the eviction queue.
func (c *LFU) EvictOne() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.evictOne()
}

// EvictExpired removes every occurrence older than the maximum age.
func (c *LFU) EvictExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.evictExpired()
}

// Len reads the number of distinct keys in the cache.
func (c *LFU) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.entries)
}

// QueueLen reads the number of occurrences on the eviction queue.
func (c *LFU) QueueLen() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.queue.Len()
}

// Count reads the reference count of key; zero means the key is absent.
func (c *LFU) Count(key string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.entries[key]; ok {
		return entry.count
	}

	return 0
}

func (c *LFU) set(key string, value string) {
	if c.queue.Len() >= c.maxSize {
		c.evictOne()
	}

	entry, ok := c.entries[key]
	if !ok {
		entry = &lfuEntry{}
		c.entries[key] = entry
	}

	entry.count++
	entry.value = value

	c.queue.PushBack(data.Occurrence{Time: c.clock(), Key: key})
}

func (c *LFU) evictOne() {
	if o, ok := c.queue.PopFront(); ok {
		c.release(o.Key)
	}
}

// evictExpired stops at the first live occurrence: queue timestamps never decrease front to back.
func (c *LFU) evictExpired() {
	cutoff := c.clock().Add(-c.maxAge)

	for {
		o, ok := c.queue.Front()
		if !ok || o.Time.After(cutoff) {
			return
		}

		c.queue.PopFront()
		c.release(o.Key)
	}
}

// release drops one occurrence of key, deleting the entry when none remain.
func (c *LFU) release(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}

	entry.count--
	if entry.count <= 0 {
		delete(c.entries, key)
	}
}
