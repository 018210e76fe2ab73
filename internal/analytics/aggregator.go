package analytics

import (
	"sync"
	"time"
)

// LinkStats are the counters of one alias.
type LinkStats struct {
	Created   int64
	Redirects int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// DailyStats are the counters of one UTC day.
type DailyStats struct {
	Links     int64
	Redirects int64
}

// Snapshot is a batch of aggregated counters ready to be persisted.
type Snapshot struct {
	TotalLinks     int64
	TotalRedirects int64
	Links          map[string]LinkStats
	Daily          map[time.Time]DailyStats
}

// Empty reports whether the snapshot carries no events.
func (s *Snapshot) Empty() bool {
	return s.TotalLinks == 0 && s.TotalRedirects == 0
}

func newSnapshot() Snapshot {
	return Snapshot{
		Links: make(map[string]LinkStats),
		Daily: make(map[time.Time]DailyStats),
	}
}

// Aggregator folds events into a snapshot of counters.
type Aggregator struct {
	mu      sync.Mutex
	current Snapshot
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{current: newSnapshot()}
}

// Add counts one event.
func (a *Aggregator) Add(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := event.Timestamp.UTC()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)

	link := a.current.Links[event.Alias]
	daily := a.current.Daily[day]

	switch event.EventType {
	case EventLinkCreated:
		a.current.TotalLinks++
		link.Created++
		daily.Links++
	case EventRedirect:
		a.current.TotalRedirects++
		link.Redirects++
		daily.Redirects++
	default:
		return
	}

	if link.FirstSeen.IsZero() || ts.Before(link.FirstSeen) {
		link.FirstSeen = ts
	}

	if ts.After(link.LastSeen) {
		link.LastSeen = ts
	}

	a.current.Links[event.Alias] = link
	a.current.Daily[day] = daily
}

// Take returns the accumulated counters and resets the aggregator.
func (a *Aggregator) Take() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.current
	a.current = newSnapshot()

	return snap
}
