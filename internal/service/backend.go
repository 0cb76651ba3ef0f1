package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/debounce"
	"pagebuilder/internal/domain"
)

var (
	ErrNoCachedEntry = errors.New("no cached entry")
	ErrClosed        = errors.New("backend closed")
)

// NoCachedEntryError is returned by Get for a page that was never opened or
// created. It is a caller bug and is never papered over.
type NoCachedEntryError struct {
	ID string
}

func (e *NoCachedEntryError) Error() string {
	return fmt.Sprintf("no cached entry for page %s: initialize it with Open or Create before Get", e.ID)
}

func (e *NoCachedEntryError) Is(target error) bool {
	return target == ErrNoCachedEntry
}

// Converter translates between editor entries and canonical trees.
// *adapter.Adapter implements it.
type Converter interface {
	ToCanonical(e domain.Entry) domain.Node
	ToExternal(n domain.Node) domain.Entry
}

// PageSource is the host's page set as the backend sees it.
type PageSource interface {
	PageIDs() ([]string, error)
	GetPage(id string) (*domain.Page, error)
}

// Response is what the editor gets back from Get, Create, Update and Open.
type Response struct {
	ID      string       `json:"id"`
	Version int          `json:"version"`
	Entry   domain.Entry `json:"entry"`
}

// BackendConfig wires a Backend.
type BackendConfig struct {
	Cache     *CacheStore
	Converter Converter
	Pages     PageSource
	Host      Host
	Debounce  time.Duration
}

// ─────────────────────────────────────────────────────────────
// Backend: editor document API over the shared cache
// ─────────────────────────────────────────────────────────────

// Backend serves editor documents from a CacheStore and pushes canonical
// pages to the host. Each page has its own debouncer.
type Backend struct {
	cache *CacheStore
	conv  Converter
	pages PageSource
	host  Host
	wait  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*debounce.Debouncer[domain.Node]
	writing map[string]*sync.Mutex
	closed  bool
}

// NewBackend creates a Backend and runs cache hygiene: records for pages the
// host no longer has are dropped, and adapter-seeded records are discarded so
// they are re-synthesized from the current canonical tree.
func NewBackend(cfg BackendConfig) (*Backend, error) {
	if cfg.Cache == nil {
		cfg.Cache = NewCacheStore()
	}
	if cfg.Converter == nil {
		cfg.Converter = adapter.Default()
	}
	if cfg.Host == nil {
		cfg.Host = HostFuncs{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		cache:   cfg.Cache,
		conv:    cfg.Converter,
		pages:   cfg.Pages,
		host:    cfg.Host,
		wait:    cfg.Debounce,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*debounce.Debouncer[domain.Node]),
		writing: make(map[string]*sync.Mutex),
	}

	if b.pages != nil {
		ids, err := b.pages.PageIDs()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("list pages for cache hygiene: %w", err)
		}
		if orphans := b.cache.EvictOrphans(ids); len(orphans) > 0 {
			log.Printf("backend: evicted %d orphaned cache entries: %v", len(orphans), orphans)
		}
	}
	if seeded := b.cache.InvalidateSeeded(); len(seeded) > 0 {
		log.Printf("backend: invalidated %d adapter-seeded cache entries", len(seeded))
	}
	return b, nil
}

// Cache returns the store this backend serves from.
func (b *Backend) Cache() *CacheStore { return b.cache }

// ── Editor operations ─────────────────────────────────────

// Get returns the cached document for id. A page with no cache entry yields
// *NoCachedEntryError.
func (b *Backend) Get(id string) (Response, error) {
	rec, ok := b.cache.Get(id)
	if !ok {
		return Response{}, &NoCachedEntryError{ID: id}
	}
	return response(rec), nil
}

// Create registers a new page from an editor-normalized entry and notifies
// the host right away.
func (b *Backend) Create(ctx context.Context, entry domain.Entry) (Response, error) {
	if err := b.checkOpen(); err != nil {
		return Response{}, err
	}
	id := uuid.New().String()
	rec := domain.DocRecord{
		ID:         id,
		Version:    1,
		Entry:      entry,
		Provenance: domain.ProvenanceNative,
		UpdatedAt:  time.Now(),
	}
	b.cache.Put(rec)

	node, err := b.toCanonical(id, entry)
	if err != nil {
		log.Printf("backend: create %s: %v (host not notified)", id, err)
		return response(rec), nil
	}
	b.host.OnPageChange(ctx, id, b.pageFor(id, node))
	return response(rec), nil
}

// Update caches entry as the page's native document, bumps the version and
// schedules a debounced host notification. version is the editor's view of
// the current version; a mismatch is logged, the write still wins.
// Updates to one page are applied one at a time, so the debouncer always
// holds the tree of the newest cached entry.
func (b *Backend) Update(ctx context.Context, id string, version int, entry domain.Entry) (Response, error) {
	if err := b.checkOpen(); err != nil {
		return Response{}, err
	}
	unlock := b.lockPage(id)
	defer unlock()

	rec, prev := b.cache.Bump(id, entry)
	if prev > 0 && version != prev {
		log.Printf("backend: update %s: stale version %d (current %d)", id, version, prev)
	}

	node, err := b.toCanonical(id, entry)
	if err != nil {
		// an older pending tree must not reach the host after this entry
		b.Cancel(id)
		log.Printf("backend: update %s v%d: %v (host not notified)", id, rec.Version, err)
		return response(rec), nil
	}
	b.debouncer(id).Call(node)
	return response(rec), nil
}

// Open hydrates the cache for a page the host already has. A persisted
// native entry is reused as is; otherwise the canonical tree is converted
// and cached as adapter-seeded. Cached pages are returned unchanged.
func (b *Backend) Open(ctx context.Context, id string) (Response, error) {
	if err := b.checkOpen(); err != nil {
		return Response{}, err
	}
	unlock := b.lockPage(id)
	defer unlock()

	if rec, ok := b.cache.Get(id); ok {
		return response(rec), nil
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if b.pages == nil {
		return Response{}, &NoCachedEntryError{ID: id}
	}
	page, err := b.pages.GetPage(id)
	if err != nil {
		return Response{}, fmt.Errorf("open %s: %w", id, err)
	}

	rec := domain.DocRecord{ID: id, Version: 1, UpdatedAt: time.Now()}
	if page.HasNativeEntry() {
		var entry domain.Entry
		if err := json.Unmarshal(page.NativeEntry, &entry); err != nil {
			log.Printf("backend: open %s: unreadable native entry, re-seeding: %v", id, err)
		} else {
			rec.Entry = entry
			rec.Provenance = domain.ProvenanceNative
			b.cache.Put(rec)
			return response(rec), nil
		}
	}

	entry, err := adapter.Safely("toExternal", id, func() domain.Entry { return b.conv.ToExternal(page.Content) })
	if err != nil {
		return Response{}, fmt.Errorf("open %s: %w", id, err)
	}
	rec.Entry = entry
	rec.Provenance = domain.ProvenanceAdapterSeeded
	b.cache.Put(rec)
	return response(rec), nil
}

// HasNativeEntry reports whether id's cached document came from the editor.
func (b *Backend) HasNativeEntry(id string) bool {
	return b.cache.HasNative(id)
}

// EvictCrashed drops an adapter-seeded document known to crash the editor, so
// the next load bootstraps from scratch. Native documents are refused.
func (b *Backend) EvictCrashed(id string) (bool, error) {
	evicted, err := b.cache.EvictSeeded(id)
	if err != nil {
		return false, fmt.Errorf("evict %s: %w", id, err)
	}
	if evicted {
		log.Printf("backend: evicted crashing adapter-seeded entry for %s", id)
	}
	return evicted, nil
}

// DeletePage drops any pending notification and cached document for id,
// then tells the host.
func (b *Backend) DeletePage(ctx context.Context, id string) {
	b.Invalidate(id)
	if d, ok := b.host.(PageDeleter); ok {
		d.OnPageDelete(ctx, id)
	}
}

// Invalidate forgets id without notifying the host. Used when the page was
// replaced out of band (undo, reload).
func (b *Backend) Invalidate(id string) {
	b.Cancel(id)
	b.cache.Delete(id)
}

// Reset cancels every pending notification and empties the cache.
func (b *Backend) Reset() {
	b.mu.Lock()
	for id, d := range b.pending {
		d.Cancel()
		delete(b.pending, id)
	}
	b.mu.Unlock()
	b.cache.Clear()
}

// ── Debounce control ──────────────────────────────────────

// Flush fires every pending notification without waiting.
func (b *Backend) Flush() {
	for _, d := range b.debouncers() {
		d.Flush()
	}
}

// FlushSync fires every pending notification and returns once the host has
// processed all of them.
func (b *Backend) FlushSync(ctx context.Context) error {
	var errs []error
	for _, d := range b.debouncers() {
		if err := d.FlushSync(ctx); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}

// Cancel drops id's pending notification.
func (b *Backend) Cancel(id string) {
	b.mu.Lock()
	d, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok {
		d.Cancel()
	}
}

// Pending reports whether id has a notification waiting.
func (b *Backend) Pending(id string) bool {
	b.mu.Lock()
	d, ok := b.pending[id]
	b.mu.Unlock()
	return ok && d.Pending()
}

// PendingIDs lists pages with a notification waiting.
func (b *Backend) PendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for id, d := range b.pending {
		if d.Pending() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close flushes pending notifications and rejects further edits.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.FlushSync(ctx)
	b.cancel()
	return err
}

// NativeSnapshot returns the serialized native documents by page id, for
// reattaching to pages at incremental save.
func (b *Backend) NativeSnapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, rec := range b.cache.Snapshot() {
		if rec.Provenance != domain.ProvenanceNative {
			continue
		}
		data, err := json.Marshal(rec.Entry)
		if err != nil {
			log.Printf("backend: snapshot %s: %v", rec.ID, err)
			continue
		}
		out[rec.ID] = data
	}
	return out
}

// ── helpers ────────────────────────────────────────────────

func (b *Backend) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// lockPage serializes writes to id's cache entry and returns the unlock.
func (b *Backend) lockPage(id string) func() {
	b.mu.Lock()
	m, ok := b.writing[id]
	if !ok {
		m = &sync.Mutex{}
		b.writing[id] = m
	}
	b.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (b *Backend) debouncer(id string) *debounce.Debouncer[domain.Node] {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.pending[id]
	if !ok {
		d = debounce.New(b.wait, func(node domain.Node) {
			b.host.OnPageChange(b.ctx, id, b.pageFor(id, node))
		})
		b.pending[id] = d
	}
	return d
}

func (b *Backend) debouncers() []*debounce.Debouncer[domain.Node] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*debounce.Debouncer[domain.Node], 0, len(b.pending))
	for _, d := range b.pending {
		out = append(out, d)
	}
	return out
}

func (b *Backend) toCanonical(id string, entry domain.Entry) (domain.Node, error) {
	return adapter.Safely("toCanonical", id, func() domain.Node { return b.conv.ToCanonical(entry) })
}

// pageFor wraps node with the host's metadata for id, or defaults for a page
// the host has not seen yet.
func (b *Backend) pageFor(id string, node domain.Node) domain.Page {
	if b.pages != nil {
		if p, err := b.pages.GetPage(id); err == nil && p != nil {
			page := *p
			page.Content = node
			page.NativeEntry = nil
			return page
		}
	}
	return domain.Page{ID: id, Label: DefaultPageLabel, Route: "/" + id, Content: node}
}

func response(rec domain.DocRecord) Response {
	return Response{ID: rec.ID, Version: rec.Version, Entry: rec.Entry}
}
