package shortener_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/serroba/shortlinks/internal/shortener"
	"github.com/serroba/shortlinks/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) Insert(context.Context, *shortener.ShortURL) error {
	return errors.New("write timeout")
}

func TestNewRandomGenerator(t *testing.T) {
	generate, err := shortener.NewRandomGenerator(6)
	require.NoError(t, err)

	base62 := regexp.MustCompile(`^[0-9A-Za-z]{6}$`)
	seen := make(map[string]struct{})

	for range 100 {
		alias := generate()
		assert.Regexp(t, base62, alias)
		seen[alias] = struct{}{}
	}

	assert.Greater(t, len(seen), 90)
}

func TestGeneratedAliasStrategy_StoreFailure(t *testing.T) {
	strategy := shortener.NewGeneratedAliasStrategy(
		brokenStore{store.NewMemoryStore()}, sequence("abc123"), 3, zap.NewNop())

	err := strategy.Assign(context.Background(), &shortener.ShortURL{TargetURL: "https://example.com"})

	var storeErr *shortener.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "insert alias", storeErr.Op)
}

func TestGeneratedAliasStrategy_AlwaysTriesOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	strategy := shortener.NewGeneratedAliasStrategy(mem, sequence("abc123"), 0, zap.NewNop())

	record := &shortener.ShortURL{TargetURL: "https://example.com"}
	require.NoError(t, strategy.Assign(context.Background(), record))
	assert.Equal(t, shortener.Alias("abc123"), record.Alias)
}

func TestCustomAliasStrategy(t *testing.T) {
	mem := store.NewMemoryStore()
	strategy := shortener.NewCustomAliasStrategy(mem)

	record := &shortener.ShortURL{Alias: "promo", TargetURL: "https://example.com"}

	require.NoError(t, strategy.Assign(context.Background(), record))
	assert.ErrorIs(t, strategy.Assign(context.Background(), record), shortener.ErrConflict)

	err := shortener.NewCustomAliasStrategy(brokenStore{mem}).Assign(context.Background(), record)

	var storeErr *shortener.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
