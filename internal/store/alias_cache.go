package store

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/metrics"
	"github.com/serroba/shortlinks/internal/shortener"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const opGetByAlias = "GetByAlias"

// CacheConfig configures the alias cache.
type CacheConfig struct {
	Enabled     bool
	MaxEntries  int
	TTL         time.Duration
	NegativeTTL time.Duration
	KeyPrefix   string
}

// DefaultCacheConfig returns the default alias cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:     true,
		MaxEntries:  50_000,
		TTL:         5 * time.Minute,
		NegativeTTL: time.Minute,
		KeyPrefix:   "shorturl:alias:",
	}
}

type entryKind uint8

const (
	entryPositive entryKind = iota + 1
	entryNegative
)

// cacheEntry is either a positive record or a negative tombstone. A missing
// cache key is the third, absent, state.
type cacheEntry struct {
	kind      entryKind
	record    *shortener.ShortURL
	expiresAt time.Time
}

// CachingRepository wraps a Repository with an in-process cache.
// Reads are cache-aside with negative caching; inserts are write-through and
// deletes evict before touching the store. Cached records never outlive
// their own expiry and disabled records are never cached.
type CachingRepository struct {
	store   shortener.Repository
	cache   *cache.Cache
	cfg     CacheConfig
	clock   clock.Clock
	metrics metrics.CacheRecorder
	logger  *zap.Logger
	fills   singleflight.Group
}

// NewCachingRepository creates a caching decorator over store.
func NewCachingRepository(
	store shortener.Repository,
	cfg CacheConfig,
	clk clock.Clock,
	recorder metrics.CacheRecorder,
	logger *zap.Logger,
) *CachingRepository {
	cleanup := cfg.TTL
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	return &CachingRepository{
		store:   store,
		cache:   cache.New(cfg.TTL, cleanup),
		cfg:     cfg,
		clock:   clk,
		metrics: recorder,
		logger:  logger,
	}
}

// GetByAlias returns the record for alias, consulting the store only on a
// cache miss. An entry past its cache TTL counts as a miss. A cached record
// that became disabled or expired is evicted but still returned so callers
// can tell gone links from unknown ones.
func (r *CachingRepository) GetByAlias(ctx context.Context, alias shortener.Alias) (*shortener.ShortURL, error) {
	if !r.cfg.Enabled {
		return r.store.GetByAlias(ctx, alias)
	}

	key := r.key(alias)
	now := r.clock.Now()

	if entry, ok := r.lookup(key); ok {
		switch entry.kind {
		case entryNegative:
			if now.Before(entry.expiresAt) {
				r.metrics.RecordHit(opGetByAlias)

				return nil, shortener.ErrNotFound
			}
		case entryPositive:
			if !now.Before(entry.expiresAt) {
				break
			}

			if !entry.record.IsServable(now) {
				r.cache.Delete(key)
				r.metrics.RecordEviction(key)

				return copyRecord(entry.record), nil
			}

			r.metrics.RecordHit(opGetByAlias)

			return copyRecord(entry.record), nil
		}

		r.cache.Delete(key)
	}

	r.metrics.RecordMiss(opGetByAlias)

	v, err, _ := r.fills.Do(key, func() (any, error) {
		return r.fill(ctx, alias, key)
	})
	if err != nil {
		return nil, err
	}

	return copyRecord(v.(*shortener.ShortURL)), nil
}

func (r *CachingRepository) fill(ctx context.Context, alias shortener.Alias, key string) (*shortener.ShortURL, error) {
	record, err := r.store.GetByAlias(ctx, alias)
	if errors.Is(err, shortener.ErrNotFound) {
		if r.cfg.NegativeTTL > 0 {
			r.set(key, cacheEntry{
				kind:      entryNegative,
				expiresAt: r.clock.Now().Add(r.cfg.NegativeTTL),
			}, r.cfg.NegativeTTL)
		}

		return nil, shortener.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	r.cacheRecord(key, record)

	return record, nil
}

// Insert writes record to the store and, on success, replaces any cached
// state for its alias. A conflicting insert leaves the cache untouched.
func (r *CachingRepository) Insert(ctx context.Context, record *shortener.ShortURL) error {
	if err := r.store.Insert(ctx, record); err != nil {
		return err
	}

	if !r.cfg.Enabled {
		return nil
	}

	key := r.key(record.Alias)
	r.cache.Delete(key)
	r.cacheRecord(key, record)

	return nil
}

// Delete evicts the alias and then removes it from the store.
func (r *CachingRepository) Delete(ctx context.Context, alias shortener.Alias) error {
	if r.cfg.Enabled {
		key := r.key(alias)
		r.cache.Delete(key)
		r.fills.Forget(key)
		r.metrics.RecordEviction(key)
	}

	return r.store.Delete(ctx, alias)
}

// TTLFor returns how long record may be cached at the current time: the
// configured TTL capped by the time left until the record expires, or zero
// when the record must not be cached.
func (r *CachingRepository) TTLFor(record *shortener.ShortURL) time.Duration {
	return r.ttlFor(record, r.clock.Now())
}

func (r *CachingRepository) ttlFor(record *shortener.ShortURL, now time.Time) time.Duration {
	if record.Disabled {
		return 0
	}

	ttl := r.cfg.TTL
	if record.ExpiresAt != nil {
		if remaining := record.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}

	return ttl
}

// Len returns the number of cached entries, including tombstones.
func (r *CachingRepository) Len() int {
	return r.cache.ItemCount()
}

// Shutdown drops all cached entries.
func (r *CachingRepository) Shutdown() error {
	r.cache.Flush()

	return nil
}

func (r *CachingRepository) cacheRecord(key string, record *shortener.ShortURL) {
	now := r.clock.Now()

	ttl := r.ttlFor(record, now)
	if ttl <= 0 {
		return
	}

	r.set(key, cacheEntry{
		kind:      entryPositive,
		record:    copyRecord(record),
		expiresAt: now.Add(ttl),
	}, ttl)
}

func (r *CachingRepository) set(key string, entry cacheEntry, ttl time.Duration) {
	if r.cfg.MaxEntries > 0 && r.cache.ItemCount() >= r.cfg.MaxEntries {
		r.logger.Debug("alias cache full, skipping fill", zap.String("key", key))

		return
	}

	r.cache.Set(key, entry, ttl)
}

func (r *CachingRepository) lookup(key string) (cacheEntry, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return cacheEntry{}, false
	}

	entry, ok := v.(cacheEntry)

	return entry, ok
}

func (r *CachingRepository) key(alias shortener.Alias) string {
	return r.cfg.KeyPrefix + string(alias)
}

func copyRecord(record *shortener.ShortURL) *shortener.ShortURL {
	if record == nil {
		return nil
	}

	cp := *record

	return &cp
}

// Compile-time check.
var _ shortener.Repository = (*CachingRepository)(nil)
