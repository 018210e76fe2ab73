package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/shortlinks/internal/shortener"
)

// PostgresStore is a PostgreSQL implementation of shortener.Repository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed alias store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (p *PostgresStore) GetByAlias(ctx context.Context, alias shortener.Alias) (*shortener.ShortURL, error) {
	query := `
		SELECT alias, target_url, created_at, expires_at, disabled, created_by
		FROM short_urls
		WHERE alias = $1
	`

	var (
		record    shortener.ShortURL
		createdBy *string
	)

	err := p.pool.QueryRow(ctx, query, string(alias)).Scan(
		&record.Alias,
		&record.TargetURL,
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.Disabled,
		&createdBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, fmt.Errorf("postgres: get alias: %w", err)
	}

	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = utcPtr(record.ExpiresAt)

	if createdBy != nil {
		record.CreatedBy = *createdBy
	}

	return &record, nil
}

func (p *PostgresStore) Insert(ctx context.Context, shortURL *shortener.ShortURL) error {
	query := `
		INSERT INTO short_urls (alias, target_url, created_at, expires_at, disabled, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alias) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query,
		string(shortURL.Alias),
		shortURL.TargetURL,
		shortURL.CreatedAt,
		shortURL.ExpiresAt,
		shortURL.Disabled,
		nullableString(shortURL.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alias: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrConflict
	}

	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, alias shortener.Alias) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM short_urls WHERE alias = $1`, string(alias))
	if err != nil {
		return fmt.Errorf("postgres: delete alias: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

// PostgresURLIndex is a PostgreSQL implementation of shortener.URLIndex.
type PostgresURLIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresURLIndex creates a new PostgreSQL-backed dedup index.
func NewPostgresURLIndex(pool *pgxpool.Pool) *PostgresURLIndex {
	return &PostgresURLIndex{pool: pool}
}

func (p *PostgresURLIndex) Get(ctx context.Context, hash shortener.URLHash) (*shortener.URLIndexEntry, error) {
	query := `
		SELECT url_hash, long_url, alias, created_at, expires_at
		FROM url_index
		WHERE url_hash = $1
	`

	var entry shortener.URLIndexEntry

	err := p.pool.QueryRow(ctx, query, string(hash)).Scan(
		&entry.URLHash,
		&entry.LongURL,
		&entry.Alias,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shortener.ErrNotFound
		}

		return nil, fmt.Errorf("postgres: get url index: %w", err)
	}

	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.ExpiresAt = utcPtr(entry.ExpiresAt)

	return &entry, nil
}

func (p *PostgresURLIndex) Insert(ctx context.Context, entry *shortener.URLIndexEntry) error {
	query := `
		INSERT INTO url_index (url_hash, long_url, alias, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url_hash) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query,
		string(entry.URLHash),
		entry.LongURL,
		string(entry.Alias),
		entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert url index: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrConflict
	}

	return nil
}

func (p *PostgresURLIndex) Delete(ctx context.Context, hash shortener.URLHash) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM url_index WHERE url_hash = $1`, string(hash))
	if err != nil {
		return fmt.Errorf("postgres: delete url index: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

// PostgresExpiryIndex is a PostgreSQL implementation of shortener.ExpiryIndex.
type PostgresExpiryIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresExpiryIndex creates a new PostgreSQL-backed expiry index.
func NewPostgresExpiryIndex(pool *pgxpool.Pool) *PostgresExpiryIndex {
	return &PostgresExpiryIndex{pool: pool}
}

func (p *PostgresExpiryIndex) Insert(ctx context.Context, entry *shortener.ExpiryIndexEntry) error {
	query := `
		INSERT INTO expiry_index (partition, row_key, alias, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition, row_key) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query, entry.Partition, entry.Key, string(entry.Alias), entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: insert expiry index: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrConflict
	}

	return nil
}

func (p *PostgresExpiryIndex) GetExpired(
	ctx context.Context, partition string, before time.Time,
) ([]shortener.ExpiryIndexEntry, error) {
	query := `
		SELECT partition, row_key, alias, expires_at
		FROM expiry_index
		WHERE partition = $1 AND expires_at < $2
		ORDER BY row_key
	`

	rows, err := p.pool.Query(ctx, query, partition, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: query expiry index: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortener.ExpiryIndexEntry, error) {
		var e shortener.ExpiryIndexEntry
		err := row.Scan(&e.Partition, &e.Key, &e.Alias, &e.ExpiresAt)
		e.ExpiresAt = e.ExpiresAt.UTC()

		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expiry index: %w", err)
	}

	return entries, nil
}

func (p *PostgresExpiryIndex) Delete(ctx context.Context, partition, key string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM expiry_index WHERE partition = $1 AND row_key = $2`, partition, key)
	if err != nil {
		return fmt.Errorf("postgres: delete expiry index: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}

	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC()

	return &u
}

// Compile-time checks.
var (
	_ shortener.Repository  = (*PostgresStore)(nil)
	_ shortener.URLIndex    = (*PostgresURLIndex)(nil)
	_ shortener.ExpiryIndex = (*PostgresExpiryIndex)(nil)
)
