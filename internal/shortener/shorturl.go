package shortener

import "time"

// Alias is the short identifier a link is reachable under.
type Alias string

// URLHash represents a hash of a normalized URL.
type URLHash string

// ShortURL is the durable record behind an alias.
type ShortURL struct {
	Alias     Alias
	TargetURL string
	CreatedAt time.Time
	ExpiresAt *time.Time
	Disabled  bool
	CreatedBy string
}

// IsExpired reports whether the record expired strictly before now.
// A record expiring exactly at now is still live.
func (u *ShortURL) IsExpired(now time.Time) bool {
	return u.ExpiresAt != nil && u.ExpiresAt.Before(now)
}

// IsServable reports whether a redirect may be issued for the record at now.
func (u *ShortURL) IsServable(now time.Time) bool {
	return !u.Disabled && !u.IsExpired(now)
}

// URLIndexEntry maps a target URL back to the alias created for it.
type URLIndexEntry struct {
	URLHash   URLHash
	LongURL   string
	Alias     Alias
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// IsValid reports whether the entry can still be used for deduplication at now.
func (e *URLIndexEntry) IsValid(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

const (
	expiryPartitionLayout = "20060102"
	expiryKeyLayout       = "150405"
)

// ExpiryIndexEntry lets the reaper find records expiring on a given day.
type ExpiryIndexEntry struct {
	Partition string
	Key       string
	Alias     Alias
	ExpiresAt time.Time
}

// NewExpiryIndexEntry builds the index entry for an alias expiring at expiresAt.
func NewExpiryIndexEntry(alias Alias, expiresAt time.Time) *ExpiryIndexEntry {
	expiresAt = expiresAt.UTC()

	return &ExpiryIndexEntry{
		Partition: ExpiryPartition(expiresAt),
		Key:       expiresAt.Format(expiryKeyLayout) + "|" + string(alias),
		Alias:     alias,
		ExpiresAt: expiresAt,
	}
}

// ExpiryPartition returns the day partition ("yyyyMMdd") for t.
func ExpiryPartition(t time.Time) string {
	return t.UTC().Format(expiryPartitionLayout)
}
