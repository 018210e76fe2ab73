package store

import (
	"context"

	"github.com/serroba/shortlinks/internal/analytics"
	"go.uber.org/zap"
)

// Noop is an analytics.Store that only logs what it would persist.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op analytics store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveSnapshot(_ context.Context, snap analytics.Snapshot) error {
	n.logger.Info("statistics snapshot received",
		zap.Int64("links", snap.TotalLinks),
		zap.Int64("redirects", snap.TotalRedirects),
		zap.Int("aliases", len(snap.Links)),
		zap.Int("days", len(snap.Daily)),
	)

	for alias, link := range snap.Links {
		n.logger.Debug("alias statistics",
			zap.String("alias", alias),
			zap.Int64("created", link.Created),
			zap.Int64("redirects", link.Redirects),
			zap.Time("last_seen", link.LastSeen),
		)
	}

	return nil
}
