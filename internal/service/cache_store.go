package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"pagebuilder/internal/domain"
)

// ErrNativeEntry is returned when a crash-fallback eviction targets an entry
// the editor produced itself.
var ErrNativeEntry = errors.New("refusing to evict native entry")

// ─────────────────────────────────────────────────────────────
// CacheStore: process-wide document cache
// ─────────────────────────────────────────────────────────────

// CacheStore holds the cached editor documents keyed by page id. One store
// outlives any number of Backend instances built over it.
type CacheStore struct {
	mu      sync.RWMutex
	records map[string]domain.DocRecord
}

// NewCacheStore creates an empty CacheStore.
func NewCacheStore() *CacheStore {
	return &CacheStore{records: make(map[string]domain.DocRecord)}
}

// Get returns a copy of the record for id.
func (c *CacheStore) Get(id string) (domain.DocRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return domain.DocRecord{}, false
	}
	rec.Entry = rec.Entry.Clone()
	return rec, true
}

// Put stores rec, replacing any previous record for rec.ID.
func (c *CacheStore) Put(rec domain.DocRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec.Entry = rec.Entry.Clone()
	c.records[rec.ID] = rec
}

// Bump stores entry as id's native record with the next version, in one
// step. It returns the stored record and the version it replaced (0 when
// id was not cached).
func (c *CacheStore) Bump(id string, entry domain.Entry) (domain.DocRecord, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.records[id].Version
	rec := domain.DocRecord{
		ID:         id,
		Version:    prev + 1,
		Entry:      entry.Clone(),
		Provenance: domain.ProvenanceNative,
		UpdatedAt:  time.Now(),
	}
	c.records[id] = rec
	rec.Entry = entry
	return rec, prev
}

// Delete drops the record for id. It reports whether one existed.
func (c *CacheStore) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[id]
	delete(c.records, id)
	return ok
}

// Clear drops every record.
func (c *CacheStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.records)
}

// IDs returns the cached page ids, sorted.
func (c *CacheStore) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := lo.Keys(c.records)
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached records.
func (c *CacheStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// HasNative reports whether id holds an editor-produced record.
func (c *CacheStore) HasNative(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return ok && rec.Provenance == domain.ProvenanceNative
}

// EvictOrphans drops records whose page is no longer in live and returns
// the evicted ids.
func (c *CacheStore) EvictOrphans(live []string) []string {
	keep := lo.SliceToMap(live, func(id string) (string, struct{}) { return id, struct{}{} })

	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []string
	for id := range c.records {
		if _, ok := keep[id]; !ok {
			delete(c.records, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// InvalidateSeeded drops every adapter-seeded record so it is re-synthesized
// from the current canonical tree on next open. Native records are kept.
func (c *CacheStore) InvalidateSeeded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []string
	for id, rec := range c.records {
		if rec.Provenance == domain.ProvenanceAdapterSeeded {
			delete(c.records, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// EvictSeeded is the crash fallback: it drops an adapter-seeded record so the
// page falls back to bootstrap initialization. Native records are refused.
func (c *CacheStore) EvictSeeded(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return false, nil
	}
	if rec.Provenance == domain.ProvenanceNative {
		return false, ErrNativeEntry
	}
	delete(c.records, id)
	return true, nil
}

// Snapshot returns copies of every record, sorted by id.
func (c *CacheStore) Snapshot() []domain.DocRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.DocRecord, 0, len(c.records))
	for _, rec := range c.records {
		rec.Entry = rec.Entry.Clone()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
