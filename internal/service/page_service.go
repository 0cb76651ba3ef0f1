package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/storage"
)

// DefaultPageLabel names pages the editor creates before the host labels them.
const DefaultPageLabel = "Untitled"

// ─────────────────────────────────────────────────────────────
// Page Service: the host's page set
// ─────────────────────────────────────────────────────────────

// PageService owns persisted pages and their history. It is the Host the
// Backend notifies, and its out-of-band operations (undo, import) invalidate
// the Backend's cache.
type PageService struct {
	store   storage.Store
	emitter EventEmitter

	mu   sync.Mutex
	docs *Backend
}

// NewPageService creates a PageService.
func NewPageService(store storage.Store, emitter EventEmitter) *PageService {
	if emitter == nil {
		emitter = &MockEmitter{}
	}
	return &PageService{store: store, emitter: emitter}
}

// Attach connects the Backend whose cache this service must keep coherent.
func (s *PageService) Attach(b *Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = b
}

func (s *PageService) backend() *Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs
}

// ── Reads ──────────────────────────────────────────────────

func (s *PageService) ListPages() ([]domain.Page, error) {
	return s.store.ListPages()
}

func (s *PageService) GetPage(id string) (*domain.Page, error) {
	return s.store.GetPage(id)
}

func (s *PageService) PageIDs() ([]string, error) {
	return s.store.PageIDs()
}

func (s *PageService) History(pageID string) ([]storage.Snapshot, error) {
	return s.store.ListSnapshots(pageID)
}

// ── Host callbacks ─────────────────────────────────────────

// OnPageChange persists a page the editor changed, keeping the previous
// version in history.
func (s *PageService) OnPageChange(_ context.Context, pageID string, page domain.Page) {
	page.ID = pageID
	if err := s.SavePage(&page, "edit"); err != nil {
		log.Printf("pages: save %s: %v", pageID, err)
	}
}

// OnPageDelete removes the page and its history.
func (s *PageService) OnPageDelete(_ context.Context, pageID string) {
	if err := s.store.DeletePage(pageID); err != nil && !errors.Is(err, domain.ErrPageNotFound) {
		log.Printf("pages: delete %s: %v", pageID, err)
	}
}

// ── Writes ─────────────────────────────────────────────────

// SavePage stores page, snapshotting the stored version first. Metadata the
// editor does not own (order, created time) is carried over. The stored
// native entry is carried over only while the content it describes is
// unchanged.
func (s *PageService) SavePage(page *domain.Page, label string) error {
	if err := page.Content.Validate(); err != nil {
		log.Printf("pages: %s: %v", page.ID, err)
	}

	existing, err := s.store.GetPage(page.ID)
	switch {
	case err == nil:
		if _, err := s.store.PushSnapshot(page.ID, label, *existing); err != nil {
			return fmt.Errorf("snapshot %s: %w", page.ID, err)
		}
		page.CreatedAt = existing.CreatedAt
		page.Order = existing.Order
		if !page.HasNativeEntry() && sameContent(page.Content, existing.Content) {
			page.NativeEntry = existing.NativeEntry
		}
	case errors.Is(err, domain.ErrPageNotFound):
		ids, err := s.store.PageIDs()
		if err != nil {
			return err
		}
		page.Order = len(ids)
	default:
		return err
	}
	if page.Label == "" {
		page.Label = DefaultPageLabel
	}
	if page.Route == "" {
		page.Route = "/" + page.ID
	}
	return s.store.SavePage(page)
}

// Undo restores the page's previous version. The editor's cached document
// and any persisted native entry are stale for it, so both are dropped and
// the next Open re-seeds the page from the restored tree.
func (s *PageService) Undo(ctx context.Context, pageID string) (*domain.Page, error) {
	snap, err := s.store.PopSnapshot(pageID)
	if err != nil {
		return nil, err
	}
	restored := snap.Page
	restored.ID = pageID
	restored.NativeEntry = nil
	if err := s.store.SavePage(&restored); err != nil {
		return nil, fmt.Errorf("restore %s: %w", pageID, err)
	}
	if b := s.backend(); b != nil {
		b.Invalidate(pageID)
	}
	s.emitter.Emit(ctx, EventPageChanged, PageChange{PageID: pageID, Page: restored.Stripped()})
	log.Printf("pages: undo %s to snapshot %s (%s)", pageID, snap.ID, snap.Label)
	return &restored, nil
}

// Import replaces every page. All cached documents are dropped since any of
// them may describe a page that no longer exists or changed underneath.
func (s *PageService) Import(ctx context.Context, pages []domain.Page) error {
	for _, p := range pages {
		if p.ID == "" {
			return fmt.Errorf("import: %w: page without id", domain.ErrInvalidTree)
		}
		if err := p.Content.Validate(); err != nil {
			return fmt.Errorf("import %s: %w", p.ID, err)
		}
	}
	if err := s.store.ReplaceAll(pages); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if b := s.backend(); b != nil {
		b.Reset()
	}
	s.emitter.Emit(ctx, EventCacheReset, map[string]int{"pages": len(pages)})
	log.Printf("pages: imported %d page(s)", len(pages))
	return nil
}

// Export returns every page without editor-internal native entries.
func (s *PageService) Export() ([]domain.Page, error) {
	pages, err := s.store.ListPages()
	if err != nil {
		return nil, err
	}
	return lo.Map(pages, func(p domain.Page, _ int) domain.Page { return p.Stripped() }), nil
}

// IncrementalSave writes the Backend's native documents onto their pages so
// a restart can re-hydrate without the adapter. It returns how many pages
// were written.
func (s *PageService) IncrementalSave(ctx context.Context) (int, error) {
	b := s.backend()
	if b == nil {
		return 0, nil
	}
	natives := b.NativeSnapshot()
	saved := 0
	for id, entry := range natives {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		page, err := s.store.GetPage(id)
		if errors.Is(err, domain.ErrPageNotFound) {
			continue
		}
		if err != nil {
			return saved, err
		}
		if bytes.Equal(page.NativeEntry, entry) {
			continue
		}
		page.NativeEntry = entry
		if err := s.store.SavePage(page); err != nil {
			return saved, fmt.Errorf("incremental save %s: %w", id, err)
		}
		saved++
	}
	return saved, nil
}

func sameContent(a, b domain.Node) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}
