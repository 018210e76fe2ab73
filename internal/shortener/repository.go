package shortener

import (
	"context"
	"time"

	"github.com/serroba/shortlinks/internal/analytics"
)

// Repository stores alias records.
// Insert returns ErrConflict when the alias is taken; GetByAlias and Delete
// return ErrNotFound when it does not exist.
type Repository interface {
	GetByAlias(ctx context.Context, alias Alias) (*ShortURL, error)
	Insert(ctx context.Context, shortURL *ShortURL) error
	Delete(ctx context.Context, alias Alias) error
}

// URLIndex deduplicates target URLs.
type URLIndex interface {
	Get(ctx context.Context, hash URLHash) (*URLIndexEntry, error)
	Insert(ctx context.Context, entry *URLIndexEntry) error
	Delete(ctx context.Context, hash URLHash) error
}

// ExpiryIndex tracks when records expire so they can be reaped.
type ExpiryIndex interface {
	Insert(ctx context.Context, entry *ExpiryIndexEntry) error
	GetExpired(ctx context.Context, partition string, before time.Time) ([]ExpiryIndexEntry, error)
	Delete(ctx context.Context, partition, key string) error
}

// StatsQueue accepts statistics events without blocking the caller.
type StatsQueue interface {
	Enqueue(event analytics.Event)
}
