package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/reaper"
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lease cannot release a lock taken over by another instance.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out time-bounded leases stored in Redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a lease locker on client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "lock:",
	}
}

// Acquire takes the named lease for ttl, or returns reaper.ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (reaper.Release, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lease %s: %w", name, err)
	}

	if !ok {
		return nil, reaper.ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis: release lease %s: %w", name, err)
		}

		return nil
	}, nil
}

// MemoryLocker is a single-process lease locker.
type MemoryLocker struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]memoryLease
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates an in-process lease locker.
func NewMemoryLocker(clk clock.Clock) *MemoryLocker {
	return &MemoryLocker{
		clock:  clk,
		leases: make(map[string]memoryLease),
	}
}

// Acquire takes the named lease for ttl, or returns reaper.ErrLockHeld.
func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (reaper.Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if lease, ok := l.leases[name]; ok && now.Before(lease.expiresAt) {
		return nil, reaper.ErrLockHeld
	}

	token := uuid.NewString()
	l.leases[name] = memoryLease{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if lease, ok := l.leases[name]; ok && lease.token == token {
			delete(l.leases, name)
		}

		return nil
	}, nil
}

// Compile-time checks.
var (
	_ reaper.Locker = (*RedisLocker)(nil)
	_ reaper.Locker = (*MemoryLocker)(nil)
)
