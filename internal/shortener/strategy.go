package shortener

import (
	"context"
	"errors"

	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// AliasGenerator returns a new random alias candidate.
type AliasGenerator func() string

// NewRandomGenerator returns a generator of base62 aliases of the given length.
func NewRandomGenerator(length int) (AliasGenerator, error) {
	generate, err := nanoid.CustomASCII(base62Alphabet, length)
	if err != nil {
		return nil, err
	}

	return AliasGenerator(generate), nil
}

// AliasStrategy stores record under an alias it is responsible for choosing.
type AliasStrategy interface {
	Assign(ctx context.Context, record *ShortURL) error
}

// GeneratedAliasStrategy inserts under random aliases, drawing a new one
// after each conflict until retries are used up.
type GeneratedAliasStrategy struct {
	store    Repository
	generate AliasGenerator
	retries  int
	logger   *zap.Logger
}

// NewGeneratedAliasStrategy creates a strategy making at most retries inserts.
func NewGeneratedAliasStrategy(
	store Repository,
	generate AliasGenerator,
	retries int,
	logger *zap.Logger,
) *GeneratedAliasStrategy {
	return &GeneratedAliasStrategy{
		store:    store,
		generate: generate,
		retries:  max(retries, 1),
		logger:   logger,
	}
}

func (s *GeneratedAliasStrategy) Assign(ctx context.Context, record *ShortURL) error {
	for attempt := 1; attempt <= s.retries; attempt++ {
		record.Alias = Alias(s.generate())

		err := s.store.Insert(ctx, record)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrConflict) {
			return &StoreError{Op: "insert alias", Err: err}
		}

		s.logger.Debug("generated alias collided",
			zap.String("alias", string(record.Alias)),
			zap.Int("attempt", attempt),
		)
	}

	s.logger.Error("failed to generate unique alias", zap.Int("attempts", s.retries))

	return ErrAliasExhausted
}

// CustomAliasStrategy inserts under the alias the client asked for, once.
type CustomAliasStrategy struct {
	store Repository
}

// NewCustomAliasStrategy creates a strategy that never retries.
func NewCustomAliasStrategy(store Repository) *CustomAliasStrategy {
	return &CustomAliasStrategy{store: store}
}

func (s *CustomAliasStrategy) Assign(ctx context.Context, record *ShortURL) error {
	err := s.store.Insert(ctx, record)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return &StoreError{Op: "insert alias", Err: err}
	}
}
