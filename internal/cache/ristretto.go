package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto is a cost-bounded, admission-filtered in-process cache. Every entry costs one unit, so
// the cache holds at most MaxSize entries, each expiring MaxAge after it was written.
type Ristretto struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

// NewRistretto creates a ristretto-backed cache. Non-positive bounds fall back to the LFU
// defaults.
func NewRistretto(maxSize int, maxAge time.Duration) (*Ristretto, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: int64(maxSize) * 10,
		MaxCost:     int64(maxSize),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: error creating ristretto cache: err=%v", err)
	}

	return &Ristretto{cache: c, ttl: maxAge}, nil
}

// Get looks up the response stored for key.
func (r *Ristretto) Get(key string) (string, bool) {
	return r.cache.Get(key)
}

// Set stores value for key. The write is flushed before returning so it is visible to the next Get.
func (r *Ristretto) Set(key string, value string) {
	r.cache.SetWithTTL(key, value, 1, r.ttl)
	r.cache.Wait()
}

// Close stops the cache's background goroutines.
func (r *Ristretto) Close() {
	r.cache.Close()
}
