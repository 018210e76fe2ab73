// Package ratelimit implements per-instance admission control.
//
// Counters are bucketed into fixed, clock-aligned windows: a request at unix
// second t falls into the window starting at floor(t/window)*window and is
// counted under prefix+identity+":"+windowStart. Counters live for two
// windows and are never persisted, so limits reset when the process restarts.
//
// Because windows are fixed, a burst straddling a boundary may let through up
// to twice the limit across the two windows. This approximation is accepted.
package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/serroba/shortlinks/internal/clock"
	"go.uber.org/zap"
)

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
	Key               string
}

// Allowed builds a passing result.
func Allowed(count, limit int64) Result {
	return Result{Allowed: true, CurrentCount: count, Limit: limit}
}

// Blocked builds a rejecting result.
func Blocked(count, limit, retryAfterSeconds int64, key string) Result {
	return Result{
		CurrentCount:      count,
		Limit:             limit,
		RetryAfterSeconds: retryAfterSeconds,
		Key:               key,
	}
}

// Counter increments expiring counters atomically.
type Counter interface {
	// Increment adds one to key, creating it with the given ttl when absent,
	// and returns the new value.
	Increment(key string, ttl time.Duration) int64
}

// Limiter checks requests against the fixed window limits of a Policy.
type Limiter struct {
	counter Counter
	policy  *Policy
	clock   clock.Clock
	logger  *zap.Logger
}

// NewLimiter creates a limiter over counter using policy.
func NewLimiter(counter Counter, policy *Policy, clk clock.Clock, logger *zap.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		policy:  policy,
		clock:   clk,
		logger:  logger,
	}
}

// Check counts one request for identity in bucket.
func (l *Limiter) Check(bucket Bucket, identity string) Result {
	cfg, ok := l.policy.Limits[bucket]
	if !ok {
		l.logger.Warn("no rate limit configured for bucket", zap.String("bucket", string(bucket)))

		return Allowed(0, 0)
	}

	if !l.policy.Enabled {
		return Allowed(0, cfg.Max)
	}

	windowSeconds := int64(cfg.Window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	now := l.clock.Now().Unix()
	windowStart := floorDiv(now, windowSeconds) * windowSeconds
	key := bucket.Prefix() + identity + ":" + strconv.FormatInt(windowStart, 10)

	count := l.counter.Increment(key, time.Duration(2*windowSeconds)*time.Second)
	if count > cfg.Max {
		retryAfter := windowStart + windowSeconds - now

		l.logger.Warn("rate limit exceeded",
			zap.String("bucket", string(bucket)),
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int64("limit", cfg.Max),
			zap.Int64("retry_after", retryAfter),
		)

		return Blocked(count, cfg.Max, retryAfter, key)
	}

	res := Allowed(count, cfg.Max)
	res.Key = key

	return res
}

// CheckShortenURL limits how often the same target URL is shortened.
func (l *Limiter) CheckShortenURL(longURL string) Result {
	return l.Check(BucketShortenURL, IdentityHash(longURL))
}

// CheckShortenIP limits shorten requests per client IP.
func (l *Limiter) CheckShortenIP(ip string) Result {
	return l.Check(BucketShortenIP, ip)
}

// CheckRedirectAlias limits redirects per alias.
func (l *Limiter) CheckRedirectAlias(alias string) Result {
	return l.Check(BucketRedirectAlias, alias)
}

// CheckRedirectIP limits redirects per client IP.
func (l *Limiter) CheckRedirectIP(ip string) Result {
	return l.Check(BucketRedirectIP, ip)
}

// CheckNotFoundIP counts a lookup of an unknown or malformed alias.
func (l *Limiter) CheckNotFoundIP(ip string) Result {
	return l.Check(BucketNotFoundIP, ip)
}

// IdentityHash maps a long identity such as a URL to a fixed-width key.
func IdentityHash(identity string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(identity))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}
