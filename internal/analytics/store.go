package analytics

import "context"

// Store persists aggregated statistics. Implementations add the snapshot's
// counters to what is already stored.
type Store interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}
