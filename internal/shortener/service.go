package shortener

import (
	"context"
	"errors"
	"time"

	"github.com/serroba/shortlinks/internal/analytics"
	"github.com/serroba/shortlinks/internal/clock"
	"github.com/serroba/shortlinks/internal/ratelimit"
	"go.uber.org/zap"
)

// Config controls request validation and alias assignment.
type Config struct {
	MaxURLLength  int
	MinTTLSeconds int64
	MaxTTLSeconds int64
	HTTPSOnly     bool
	AliasRetries  int
}

// DefaultConfig returns a 4096 character URL limit, TTLs between one minute
// and 90 days, and three alias attempts.
func DefaultConfig() Config {
	return Config{
		MaxURLLength:  4096,
		MinTTLSeconds: 60,
		MaxTTLSeconds: 7_776_000,
		AliasRetries:  3,
	}
}

// RateLimiter is the subset of *ratelimit.Limiter the service consults.
type RateLimiter interface {
	CheckShortenIP(ip string) ratelimit.Result
	CheckShortenURL(longURL string) ratelimit.Result
	CheckRedirectIP(ip string) ratelimit.Result
	CheckRedirectAlias(alias string) ratelimit.Result
	CheckNotFoundIP(ip string) ratelimit.Result
}

// ShortenRequest is a validated-at-the-edge request to create a link.
type ShortenRequest struct {
	LongURL          string
	ExpiresInSeconds *int64
	CustomAlias      string
	ClientIP         string
	CreatedBy        string
}

// ShortenResult carries the link to report back. Created is false when an
// existing alias for the same URL was returned instead.
type ShortenResult struct {
	Record  *ShortURL
	Created bool
}

// Service implements shortening and redirect resolution on top of the alias
// store and its indexes.
type Service struct {
	aliases   Repository
	urls      URLIndex
	expiry    ExpiryIndex
	limiter   RateLimiter
	stats     StatsQueue
	generated AliasStrategy
	custom    AliasStrategy
	clock     clock.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewService wires a Service. aliases is expected to be the caching
// repository so that redirects and rollbacks keep the cache consistent.
func NewService(
	aliases Repository,
	urls URLIndex,
	expiry ExpiryIndex,
	limiter RateLimiter,
	stats StatsQueue,
	generate AliasGenerator,
	clk clock.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		aliases:   aliases,
		urls:      urls,
		expiry:    expiry,
		limiter:   limiter,
		stats:     stats,
		generated: NewGeneratedAliasStrategy(aliases, generate, cfg.AliasRetries, logger),
		custom:    NewCustomAliasStrategy(aliases),
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// Config returns the configuration the service validates against.
func (s *Service) Config() Config {
	return s.cfg
}

// Shorten creates a link for req.LongURL, or returns the live alias already
// created for the same URL.
func (s *Service) Shorten(ctx context.Context, req ShortenRequest) (*ShortenResult, error) {
	if res := s.limiter.CheckShortenIP(req.ClientIP); !res.Allowed {
		return nil, &RateLimitedError{Result: res}
	}

	if err := s.cfg.ValidateLongURL(req.LongURL); err != nil {
		return nil, err
	}

	if err := ValidateCustomAlias(req.CustomAlias); err != nil {
		return nil, err
	}

	if res := s.limiter.CheckShortenURL(req.LongURL); !res.Allowed {
		return nil, &RateLimitedError{Result: res}
	}

	if err := s.cfg.ValidateExpiresIn(req.ExpiresInSeconds); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	ttl := s.cfg.MaxTTLSeconds
	if req.ExpiresInSeconds != nil {
		ttl = *req.ExpiresInSeconds
	}

	expiresAt := now.Add(time.Duration(ttl) * time.Second)
	hash := HashURL(req.LongURL)

	if req.CustomAlias == "" {
		if existing := s.existing(ctx, hash, req.LongURL, now); existing != nil {
			s.logger.Info("returning existing short url",
				zap.String("alias", string(existing.Alias)),
				zap.String("long_url", existing.TargetURL),
			)

			existing.CreatedAt = now

			return &ShortenResult{Record: existing}, nil
		}
	}

	record := &ShortURL{
		TargetURL: req.LongURL,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
		CreatedBy: req.CreatedBy,
	}

	strategy := s.generated
	if req.CustomAlias != "" {
		record.Alias = Alias(req.CustomAlias)
		strategy = s.custom
	}

	if err := strategy.Assign(ctx, record); err != nil {
		return nil, err
	}

	saga := &Saga{}
	saga.Add("delete alias", func(ctx context.Context) error {
		return s.aliases.Delete(ctx, record.Alias)
	})

	if record.ExpiresAt != nil {
		if err := s.expiry.Insert(ctx, NewExpiryIndexEntry(record.Alias, *record.ExpiresAt)); err != nil {
			s.logger.Error("failed to insert expiry index, rolling back",
				zap.String("alias", string(record.Alias)),
				zap.Error(err),
			)

			if rbErr := saga.Rollback(ctx); rbErr != nil {
				s.logger.Error("rollback failed", zap.String("alias", string(record.Alias)), zap.Error(rbErr))
			}

			return nil, &StoreError{Op: "insert expiry index", Err: err}
		}
	}

	s.index(ctx, hash, record)

	s.logger.Info("created short url",
		zap.String("alias", string(record.Alias)),
		zap.String("long_url", record.TargetURL),
	)

	s.stats.Enqueue(analytics.NewLinkCreated(string(record.Alias), s.clock.Now()))

	return &ShortenResult{Record: record, Created: true}, nil
}

// existing returns the live alias indexed under hash for exactly longURL,
// deleting the entry if it has expired. Index failures only disable
// deduplication for the request.
func (s *Service) existing(ctx context.Context, hash URLHash, longURL string, now time.Time) *ShortURL {
	entry, err := s.urls.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("url index lookup failed", zap.Error(err))
		}

		return nil
	}

	if entry.LongURL != longURL {
		s.logger.Warn("url index hash collision",
			zap.String("alias", string(entry.Alias)),
			zap.String("indexed_url", entry.LongURL),
		)

		return nil
	}

	if entry.IsValid(now) {
		return &ShortURL{Alias: entry.Alias, TargetURL: entry.LongURL, ExpiresAt: entry.ExpiresAt}
	}

	s.logger.Debug("url index entry expired", zap.String("alias", string(entry.Alias)))

	if err := s.urls.Delete(ctx, hash); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("failed to delete expired url index entry", zap.Error(err))
	}

	return nil
}

func (s *Service) index(ctx context.Context, hash URLHash, record *ShortURL) {
	entry := &URLIndexEntry{
		URLHash:   hash,
		LongURL:   record.TargetURL,
		Alias:     record.Alias,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}

	if err := s.urls.Insert(ctx, entry); err != nil {
		s.logger.Warn("failed to insert url index",
			zap.String("alias", string(record.Alias)),
			zap.Error(err),
		)
	}
}

// Resolve returns the record a redirect for alias should be served from.
// Disabled and expired links yield ErrGone; unknown or malformed aliases
// yield ErrNotFound, or a RateLimitedError once the client has been probing
// too many of them.
func (s *Service) Resolve(ctx context.Context, alias, clientIP string) (*ShortURL, error) {
	if res := s.limiter.CheckRedirectIP(clientIP); !res.Allowed {
		return nil, &RateLimitedError{Result: res}
	}

	if !IsAliasFormat(alias) {
		s.logger.Warn("invalid alias format", zap.String("alias", alias))

		return nil, s.notFound(clientIP)
	}

	if res := s.limiter.CheckRedirectAlias(alias); !res.Allowed {
		return nil, &RateLimitedError{Result: res}
	}

	record, err := s.aliases.GetByAlias(ctx, Alias(alias))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("alias not found", zap.String("alias", alias))

			return nil, s.notFound(clientIP)
		}

		return nil, &StoreError{Op: "get alias", Err: err}
	}

	now := s.clock.Now()
	if !record.IsServable(now) {
		s.logger.Warn("alias expired or disabled", zap.String("alias", alias))

		return nil, ErrGone
	}

	s.stats.Enqueue(analytics.NewRedirect(alias, now))

	return record, nil
}

func (s *Service) notFound(clientIP string) error {
	if res := s.limiter.CheckNotFoundIP(clientIP); !res.Allowed {
		return &RateLimitedError{Result: res}
	}

	return ErrNotFound
}
