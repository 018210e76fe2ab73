package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/shortlinks/internal/analytics"
)

// Postgres adds snapshots to the stats_* tables. One snapshot is written in a
// single transaction so a failed save leaves no partial counters behind.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres creates a PostgreSQL-backed statistics store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (p *Postgres) SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error {
	if snap.Empty() {
		return nil
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		batch.Queue(`
			INSERT INTO stats_global (id, total_links, total_redirects, updated_at)
			VALUES (1, $1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				total_links = stats_global.total_links + EXCLUDED.total_links,
				total_redirects = stats_global.total_redirects + EXCLUDED.total_redirects,
				updated_at = EXCLUDED.updated_at
		`, snap.TotalLinks, snap.TotalRedirects, p.now().UTC())

		for alias, link := range snap.Links {
			batch.Queue(`
				INSERT INTO stats_links (alias, created_count, redirect_count, first_seen, last_seen)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (alias) DO UPDATE SET
					created_count = stats_links.created_count + EXCLUDED.created_count,
					redirect_count = stats_links.redirect_count + EXCLUDED.redirect_count,
					first_seen = LEAST(stats_links.first_seen, EXCLUDED.first_seen),
					last_seen = GREATEST(stats_links.last_seen, EXCLUDED.last_seen)
			`, alias, link.Created, link.Redirects, link.FirstSeen.UTC(), link.LastSeen.UTC())
		}

		for day, daily := range snap.Daily {
			batch.Queue(`
				INSERT INTO stats_daily (day, links, redirects)
				VALUES ($1, $2, $3)
				ON CONFLICT (day) DO UPDATE SET
					links = stats_daily.links + EXCLUDED.links,
					redirects = stats_daily.redirects + EXCLUDED.redirects
			`, day, daily.Links, daily.Redirects)
		}

		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: save statistics: %w", err)
	}

	return nil
}
