package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serroba/shortlinks/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[shortener.Alias]shortener.ShortURL
}

// NewMemoryStore creates a new in-memory alias store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[shortener.Alias]shortener.ShortURL),
	}
}

func (m *MemoryStore) GetByAlias(_ context.Context, alias shortener.Alias) (*shortener.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[alias]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return &record, nil
}

func (m *MemoryStore) Insert(_ context.Context, shortURL *shortener.ShortURL) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[shortURL.Alias]; ok {
		return shortener.ErrConflict
	}

	m.records[shortURL.Alias] = *shortURL

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, alias shortener.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[alias]; !ok {
		return shortener.ErrNotFound
	}

	delete(m.records, alias)

	return nil
}

// SetDisabled flips the disabled flag of an alias.
func (m *MemoryStore) SetDisabled(_ context.Context, alias shortener.Alias, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[alias]
	if !ok {
		return shortener.ErrNotFound
	}

	record.Disabled = disabled
	m.records[alias] = record

	return nil
}

// MemoryURLIndex is an in-memory implementation of shortener.URLIndex.
type MemoryURLIndex struct {
	mu      sync.RWMutex
	entries map[shortener.URLHash]shortener.URLIndexEntry
}

// NewMemoryURLIndex creates a new in-memory dedup index.
func NewMemoryURLIndex() *MemoryURLIndex {
	return &MemoryURLIndex{
		entries: make(map[shortener.URLHash]shortener.URLIndexEntry),
	}
}

func (m *MemoryURLIndex) Get(_ context.Context, hash shortener.URLHash) (*shortener.URLIndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[hash]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return &entry, nil
}

func (m *MemoryURLIndex) Insert(_ context.Context, entry *shortener.URLIndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entry.URLHash]; ok {
		return shortener.ErrConflict
	}

	m.entries[entry.URLHash] = *entry

	return nil
}

func (m *MemoryURLIndex) Delete(_ context.Context, hash shortener.URLHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[hash]; !ok {
		return shortener.ErrNotFound
	}

	delete(m.entries, hash)

	return nil
}

// MemoryExpiryIndex is an in-memory implementation of shortener.ExpiryIndex.
type MemoryExpiryIndex struct {
	mu         sync.RWMutex
	partitions map[string]map[string]shortener.ExpiryIndexEntry
}

// NewMemoryExpiryIndex creates a new in-memory expiry index.
func NewMemoryExpiryIndex() *MemoryExpiryIndex {
	return &MemoryExpiryIndex{
		partitions: make(map[string]map[string]shortener.ExpiryIndexEntry),
	}
}

func (m *MemoryExpiryIndex) Insert(_ context.Context, entry *shortener.ExpiryIndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	partition, ok := m.partitions[entry.Partition]
	if !ok {
		partition = make(map[string]shortener.ExpiryIndexEntry)
		m.partitions[entry.Partition] = partition
	}

	if _, ok := partition[entry.Key]; ok {
		return shortener.ErrConflict
	}

	partition[entry.Key] = *entry

	return nil
}

// GetExpired returns the entries of partition that expired before before,
// ordered by key.
func (m *MemoryExpiryIndex) GetExpired(
	_ context.Context, partition string, before time.Time,
) ([]shortener.ExpiryIndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []shortener.ExpiryIndexEntry

	for _, entry := range m.partitions[partition] {
		if entry.ExpiresAt.Before(before) {
			expired = append(expired, entry)
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].Key < expired[j].Key })

	return expired, nil
}

func (m *MemoryExpiryIndex) Delete(_ context.Context, partition, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.partitions[partition][key]; !ok {
		return shortener.ErrNotFound
	}

	delete(m.partitions[partition], key)

	if len(m.partitions[partition]) == 0 {
		delete(m.partitions, partition)
	}

	return nil
}

// Compile-time checks.
var (
	_ shortener.Repository  = (*MemoryStore)(nil)
	_ shortener.URLIndex    = (*MemoryURLIndex)(nil)
	_ shortener.ExpiryIndex = (*MemoryExpiryIndex)(nil)
)
