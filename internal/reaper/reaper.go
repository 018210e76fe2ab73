// Package reaper deletes expired aliases found through the expiry index.
package reaper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/shortener"
	"go.uber.org/zap"
)

// ErrLockHeld is returned by a Locker when another holder owns the lease.
var ErrLockHeld = errors.New("lock is held by another instance")

// Release gives a lease back.
type Release func(ctx context.Context) error

// Locker hands out named, time-bounded leases.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// Config tunes the sweep.
type Config struct {
	LockName string
	LeaseTTL time.Duration
	Interval time.Duration
}

// DefaultConfig returns the default sweep settings.
func DefaultConfig() Config {
	return Config{
		LockName: "expiry-reaper.lock",
		LeaseTTL: time.Minute,
		Interval: 15 * time.Minute,
	}
}

// Reaper removes aliases whose expiry has passed.
type Reaper struct {
	aliases shortener.Repository
	expiry  shortener.ExpiryIndex
	locker  Locker
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reaper. aliases should be the caching repository so deleted
// aliases are evicted from the cache too.
func New(
	aliases shortener.Repository,
	expiry shortener.ExpiryIndex,
	locker Locker,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) *Reaper {
	return &Reaper{
		aliases: aliases,
		expiry:  expiry,
		locker:  locker,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunOnce performs a single sweep over yesterday's and today's partitions
// and returns how many index entries were removed. It returns zero without
// error when another instance holds the lease.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	release, err := r.locker.Acquire(ctx, r.cfg.LockName, r.cfg.LeaseTTL)
	if errors.Is(err, ErrLockHeld) {
		r.logger.Debug("expiry sweep skipped, lease held elsewhere")

		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release reaper lease", zap.Error(err))
		}
	}()

	now := r.clock.Now()
	partitions := []string{
		shortener.ExpiryPartition(now.AddDate(0, 0, -1)),
		shortener.ExpiryPartition(now),
	}

	removed := 0

	for _, partition := range partitions {
		entries, err := r.expiry.GetExpired(ctx, partition, now)
		if err != nil {
			return removed, err
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return removed, ctx.Err()
			}

			if r.reap(ctx, entry) {
				removed++
			}
		}
	}

	if removed > 0 {
		r.logger.Info("expired aliases removed", zap.Int("count", removed))
	}

	return removed, nil
}

func (r *Reaper) reap(ctx context.Context, entry shortener.ExpiryIndexEntry) bool {
	if err := r.aliases.Delete(ctx, entry.Alias); err != nil && !errors.Is(err, shortener.ErrNotFound) {
		r.logger.Warn("failed to delete expired alias",
			zap.String("alias", string(entry.Alias)),
			zap.Error(err),
		)

		return false
	}

	if err := r.expiry.Delete(ctx, entry.Partition, entry.Key); err != nil && !errors.Is(err, shortener.ErrNotFound) {
		r.logger.Warn("failed to delete expiry index entry",
			zap.String("alias", string(entry.Alias)),
			zap.String("partition", entry.Partition),
			zap.Error(err),
		)

		return false
	}

	return true
}

// Start runs a sweep every configured interval until Shutdown.
func (r *Reaper) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.logger.Error("expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()

	r.logger.Info("expiry reaper started", zap.Duration("interval", r.cfg.Interval))

	return nil
}

// Shutdown stops the sweep loop and waits for a running sweep to finish.
func (r *Reaper) Shutdown() error {
	if r.cancel != nil {
		r.cancel()
	}

	r.wg.Wait()

	return nil
}
