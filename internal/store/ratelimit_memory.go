package store

import (
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/serroba/shortlinks/internal/ratelimit"
)

// CounterStore is an in-process implementation of ratelimit.Counter.
// Each key holds an atomic counter that expires with its cache entry.
type CounterStore struct {
	cache *cache.Cache
}

// NewCounterStore creates a counter store that sweeps expired keys every
// cleanupInterval.
func NewCounterStore(cleanupInterval time.Duration) *CounterStore {
	return &CounterStore{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (s *CounterStore) Increment(key string, ttl time.Duration) int64 {
	for {
		if v, ok := s.cache.Get(key); ok {
			return v.(*atomic.Int64).Add(1)
		}

		counter := new(atomic.Int64)
		counter.Store(1)

		// Add fails when another request created the key first; retry the Get.
		if err := s.cache.Add(key, counter, ttl); err == nil {
			return 1
		}
	}
}

// Len returns the number of live counters.
func (s *CounterStore) Len() int {
	return s.cache.ItemCount()
}

// Shutdown releases all counters.
func (s *CounterStore) Shutdown() error {
	s.cache.Flush()

	return nil
}

var _ ratelimit.Counter = (*CounterStore)(nil)
