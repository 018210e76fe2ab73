package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/shortener"
	"github.com/serroba/shortlinks/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cacheNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// countingStore wraps a MemoryStore and counts calls.
type countingStore struct {
	*store.MemoryStore

	mu      sync.Mutex
	gets    int
	inserts int
	deletes int
	getErr  error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (c *countingStore) GetByAlias(ctx context.Context, alias shortener.Alias) (*shortener.ShortURL, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return c.MemoryStore.GetByAlias(ctx, alias)
}

func (c *countingStore) Insert(ctx context.Context, record *shortener.ShortURL) error {
	c.mu.Lock()
	c.inserts++
	c.mu.Unlock()

	return c.MemoryStore.Insert(ctx, record)
}

func (c *countingStore) Delete(ctx context.Context, alias shortener.Alias) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()

	return c.MemoryStore.Delete(ctx, alias)
}

func (c *countingStore) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gets
}

// recordingMetrics captures cache activity.
type recordingMetrics struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions []string
}

func (r *recordingMetrics) RecordHit(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recordingMetrics) RecordMiss(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recordingMetrics) RecordEviction(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, key)
}

type cacheFixture struct {
	store   *countingStore
	repo    *store.CachingRepository
	clock   *clock.Fake
	metrics *recordingMetrics
}

func newCacheFixture(t *testing.T, mutate ...func(*store.CacheConfig)) *cacheFixture {
	t.Helper()

	cfg := store.DefaultCacheConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	f := &cacheFixture{
		store:   newCountingStore(),
		clock:   clock.NewFake(cacheNow),
		metrics: &recordingMetrics{},
	}
	f.repo = store.NewCachingRepository(f.store, cfg, f.clock, f.metrics, zap.NewNop())

	return f
}

func expiringIn(d time.Duration) *time.Time {
	t := cacheNow.Add(d)

	return &t
}

func TestCachingRepository_GetByAlias(t *testing.T) {
	ctx := context.Background()

	t.Run("inserted record is served from cache", func(t *testing.T) {
		f := newCacheFixture(t)
		record := &shortener.ShortURL{Alias: "abc123", TargetURL: "https://example.com", ExpiresAt: expiringIn(time.Hour)}

		require.NoError(t, f.repo.Insert(ctx, record))

		got, err := f.repo.GetByAlias(ctx, "abc123")

		require.NoError(t, err)
		assert.Equal(t, "https://example.com", got.TargetURL)
		assert.Equal(t, 0, f.store.getCount())
		assert.Equal(t, 1, f.metrics.hits)
	})

	t.Run("miss fills from store once", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.store.MemoryStore.Insert(ctx, &shortener.ShortURL{Alias: "abc123", TargetURL: "https://example.com"}))

		for range 3 {
			got, err := f.repo.GetByAlias(ctx, "abc123")

			require.NoError(t, err)
			assert.Equal(t, "https://example.com", got.TargetURL)
		}

		assert.Equal(t, 1, f.store.getCount())
		assert.Equal(t, 1, f.metrics.misses)
		assert.Equal(t, 2, f.metrics.hits)
	})

	t.Run("unknown alias is tombstoned for the negative ttl", func(t *testing.T) {
		f := newCacheFixture(t)

		for range 3 {
			_, err := f.repo.GetByAlias(ctx, "missing")

			require.ErrorIs(t, err, shortener.ErrNotFound)
		}

		assert.Equal(t, 1, f.store.getCount())
		assert.Equal(t, 2, f.metrics.hits)

		f.clock.Advance(61 * time.Second)

		_, err := f.repo.GetByAlias(ctx, "missing")

		require.ErrorIs(t, err, shortener.ErrNotFound)
		assert.Equal(t, 2, f.store.getCount())
	})

	t.Run("ttl is capped by the record expiry", func(t *testing.T) {
		f := newCacheFixture(t)
		record := &shortener.ShortURL{Alias: "short", TargetURL: "https://example.com", ExpiresAt: expiringIn(60 * time.Second)}
		require.NoError(t, f.store.MemoryStore.Insert(ctx, record))

		assert.Equal(t, 60*time.Second, f.repo.TTLFor(record))

		_, err := f.repo.GetByAlias(ctx, "short")
		require.NoError(t, err)

		f.clock.Advance(30 * time.Second)
		_, err = f.repo.GetByAlias(ctx, "short")
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.getCount(), "still cached halfway through")

		f.clock.Advance(30 * time.Second)
		got, err := f.repo.GetByAlias(ctx, "short")
		require.NoError(t, err)
		assert.False(t, got.IsExpired(f.clock.Now()), "expiry equal to now is not expired")
		assert.Equal(t, 2, f.store.getCount(), "entry lived 60s, not 300s")
	})

	t.Run("lapsed entry is re-read from the store", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{
			Alias: "abc123", TargetURL: "https://example.com/v1", ExpiresAt: expiringIn(time.Hour),
		}))

		require.NoError(t, f.store.MemoryStore.Delete(ctx, "abc123"))
		require.NoError(t, f.store.MemoryStore.Insert(ctx, &shortener.ShortURL{
			Alias: "abc123", TargetURL: "https://example.com/v2", ExpiresAt: expiringIn(time.Hour),
		}))

		f.clock.Advance(5*time.Minute + time.Second)

		got, err := f.repo.GetByAlias(ctx, "abc123")

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/v2", got.TargetURL)
		assert.Equal(t, 1, f.store.getCount())
		assert.Equal(t, 1, f.metrics.misses)
		assert.Zero(t, f.metrics.hits)
		assert.Empty(t, f.metrics.evictions)
	})

	t.Run("entry lapsed with its record falls through to the store", func(t *testing.T) {
		f := newCacheFixture(t, func(c *store.CacheConfig) { c.TTL = 2 * time.Hour })
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{
			Alias: "abc123", TargetURL: "https://example.com", ExpiresAt: expiringIn(time.Hour),
		}))

		f.clock.Advance(time.Hour + time.Second)

		got, err := f.repo.GetByAlias(ctx, "abc123")

		require.NoError(t, err)
		assert.True(t, got.IsExpired(f.clock.Now()))
		assert.Equal(t, 1, f.store.getCount(), "read from the store, not the lapsed entry")
		assert.Empty(t, f.metrics.evictions)
		assert.Equal(t, 0, f.repo.Len())
	})

	t.Run("disabled records are never cached", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.store.MemoryStore.Insert(ctx, &shortener.ShortURL{Alias: "off", Disabled: true}))

		for range 2 {
			got, err := f.repo.GetByAlias(ctx, "off")

			require.NoError(t, err)
			assert.True(t, got.Disabled)
		}

		assert.Equal(t, 2, f.store.getCount())
		assert.Equal(t, 0, f.repo.Len())
	})

	t.Run("record already expired in store is not cached", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.store.MemoryStore.Insert(ctx, &shortener.ShortURL{Alias: "old", ExpiresAt: expiringIn(-time.Minute)}))

		got, err := f.repo.GetByAlias(ctx, "old")

		require.NoError(t, err)
		assert.True(t, got.IsExpired(f.clock.Now()))
		assert.Equal(t, 0, f.repo.Len())
	})

	t.Run("store failures are returned and not cached", func(t *testing.T) {
		f := newCacheFixture(t)
		f.store.getErr = errors.New("boom")

		_, err := f.repo.GetByAlias(ctx, "abc123")

		require.Error(t, err)
		assert.NotErrorIs(t, err, shortener.ErrNotFound)
		assert.Equal(t, 0, f.repo.Len())
	})

	t.Run("disabled cache passes through", func(t *testing.T) {
		f := newCacheFixture(t, func(c *store.CacheConfig) { c.Enabled = false })
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123"}))

		for range 2 {
			_, err := f.repo.GetByAlias(ctx, "abc123")
			require.NoError(t, err)
		}

		assert.Equal(t, 2, f.store.getCount())
		assert.Zero(t, f.metrics.hits+f.metrics.misses)
	})

	t.Run("full cache skips fills", func(t *testing.T) {
		f := newCacheFixture(t, func(c *store.CacheConfig) { c.MaxEntries = 1 })

		_, _ = f.repo.GetByAlias(ctx, "one")
		_, _ = f.repo.GetByAlias(ctx, "two")
		_, _ = f.repo.GetByAlias(ctx, "two")

		assert.Equal(t, 1, f.repo.Len())
		assert.Equal(t, 3, f.store.getCount())
	})

	t.Run("returned records are copies", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123", TargetURL: "https://example.com"}))

		got, _ := f.repo.GetByAlias(ctx, "abc123")
		got.TargetURL = "https://mutated.example"

		again, _ := f.repo.GetByAlias(ctx, "abc123")
		assert.Equal(t, "https://example.com", again.TargetURL)
	})
}

func TestCachingRepository_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("insert replaces a tombstone", func(t *testing.T) {
		f := newCacheFixture(t)

		_, err := f.repo.GetByAlias(ctx, "abc123")
		require.ErrorIs(t, err, shortener.ErrNotFound)

		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123", TargetURL: "https://example.com"}))

		got, err := f.repo.GetByAlias(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", got.TargetURL)
		assert.Equal(t, 1, f.store.getCount())
	})

	t.Run("conflict leaves the cache untouched", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123", TargetURL: "https://first.example"}))

		err := f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123", TargetURL: "https://second.example"})

		require.ErrorIs(t, err, shortener.ErrConflict)

		got, _ := f.repo.GetByAlias(ctx, "abc123")
		assert.Equal(t, "https://first.example", got.TargetURL)
	})

	t.Run("disabled insert is not cached", func(t *testing.T) {
		f := newCacheFixture(t)

		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "off", Disabled: true}))

		assert.Equal(t, 0, f.repo.Len())
	})
}

func TestCachingRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("evicts then deletes", func(t *testing.T) {
		f := newCacheFixture(t)
		require.NoError(t, f.repo.Insert(ctx, &shortener.ShortURL{Alias: "abc123"}))

		require.NoError(t, f.repo.Delete(ctx, "abc123"))

		assert.Equal(t, []string{"shorturl:alias:abc123"}, f.metrics.evictions)

		_, err := f.repo.GetByAlias(ctx, "abc123")
		assert.ErrorIs(t, err, shortener.ErrNotFound)
		assert.Equal(t, 1, f.store.getCount())
	})

	t.Run("missing alias reports ErrNotFound", func(t *testing.T) {
		f := newCacheFixture(t)

		assert.ErrorIs(t, f.repo.Delete(ctx, "nope"), shortener.ErrNotFound)
	})
}

func TestCachingRepository_ConcurrentMisses(t *testing.T) {
	f := newCacheFixture(t)
	require.NoError(t, f.store.MemoryStore.Insert(bg(), &shortener.ShortURL{Alias: "hot", TargetURL: "https://example.com"}))

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := f.repo.GetByAlias(bg(), "hot")
			assert.NoError(t, err)
			assert.Equal(t, "https://example.com", got.TargetURL)
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, f.store.getCount(), 32)
	assert.GreaterOrEqual(t, f.store.getCount(), 1)
}

func bg() context.Context {
	return context.Background()
}
