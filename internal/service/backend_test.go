package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
)

// ── fixtures ───────────────────────────────────────────────

type memPages struct {
	mu    sync.Mutex
	pages map[string]domain.Page
}

func newMemPages(pages ...domain.Page) *memPages {
	m := &memPages{pages: make(map[string]domain.Page)}
	for _, p := range pages {
		m.pages[p.ID] = p
	}
	return m
}

func (m *memPages) PageIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.pages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memPages) GetPage(id string) (*domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[id]
	if !ok {
		return nil, domain.ErrPageNotFound
	}
	return &p, nil
}

func (m *memPages) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
}

type change struct {
	PageID string
	Page   domain.Page
}

type recordingHost struct {
	mu      sync.Mutex
	changes []change
	deletes []string
}

func (h *recordingHost) OnPageChange(_ context.Context, pageID string, page domain.Page) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, change{PageID: pageID, Page: page})
}

func (h *recordingHost) OnPageDelete(_ context.Context, pageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes = append(h.deletes, pageID)
}

func (h *recordingHost) Changes() []change {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]change(nil), h.changes...)
}

func (h *recordingHost) Deletes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deletes...)
}

type panickingConverter struct{}

func (panickingConverter) ToCanonical(domain.Entry) domain.Node { panic("unexpected shape") }
func (panickingConverter) ToExternal(domain.Node) domain.Entry  { panic("unexpected shape") }

// failingConverter panics on entries whose first child is labeled "boom".
type failingConverter struct {
	service.Converter
}

func (c failingConverter) ToCanonical(e domain.Entry) domain.Node {
	if children := e.Children(); len(children) > 0 && children[0].Fields["label"] == domain.String("boom") {
		panic("unexpected shape")
	}
	return c.Converter.ToCanonical(e)
}

func buttonPage(label string) domain.Entry {
	return domain.Entry{
		ID:        "root",
		Component: "Column",
		Fields: map[string]domain.Value{
			domain.KeyChildren: domain.EntryList{
				{ID: "b1", Component: "Button", Fields: map[string]domain.Value{"label": domain.String(label)}},
			},
		},
	}
}

func canonicalPage(id string) domain.Page {
	return domain.Page{
		ID:    id,
		Label: "Page " + id,
		Route: "/" + id,
		Content: domain.Node{
			ID:   id + "-root",
			Type: "container",
			Style: map[string]string{
				"background": "#fafafa",
			},
		},
	}
}

func newBackend(t *testing.T, cfg service.BackendConfig) *service.Backend {
	t.Helper()
	if cfg.Debounce == 0 {
		cfg.Debounce = 30 * time.Millisecond
	}
	b, err := service.NewBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

// ─────────────────────────────────────────────────────────────
// Get / Create / Update
// ─────────────────────────────────────────────────────────────

func TestBackend_GetUncachedFailsLoudly(t *testing.T) {
	b := newBackend(t, service.BackendConfig{})

	_, err := b.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)

	var nce *service.NoCachedEntryError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, "missing", nce.ID)
	assert.Contains(t, err.Error(), "missing")
}

func TestBackend_CreateNotifiesSynchronously(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host})

	resp, err := b.Create(context.Background(), buttonPage("Save"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 1, resp.Version)
	assert.True(t, b.HasNativeEntry(resp.ID))

	changes := host.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, resp.ID, changes[0].PageID)
	assert.Equal(t, "stack", changes[0].Page.Content.Type)
	assert.Equal(t, service.DefaultPageLabel, changes[0].Page.Label)
	assert.Equal(t, "/"+resp.ID, changes[0].Page.Route)

	got, err := b.Get(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestBackend_UpdateBumpsVersion(t *testing.T) {
	b := newBackend(t, service.BackendConfig{})
	ctx := context.Background()

	created, err := b.Create(ctx, buttonPage("a"))
	require.NoError(t, err)

	r1, err := b.Update(ctx, created.ID, 1, buttonPage("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, r1.Version)

	// stale client version still wins
	r2, err := b.Update(ctx, created.ID, 1, buttonPage("c"))
	require.NoError(t, err)
	assert.Equal(t, 3, r2.Version)

	got, err := b.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, buttonPage("c"), got.Entry)
}

func TestBackend_DebounceCoalescesUpdates(t *testing.T) {
	host := &recordingHost{}
	pages := newMemPages(canonicalPage("p1"))
	b := newBackend(t, service.BackendConfig{Host: host, Pages: pages, Debounce: 40 * time.Millisecond})
	ctx := context.Background()

	for i, label := range []string{"one", "two", "three"} {
		_, err := b.Update(ctx, "p1", i, buttonPage(label))
		require.NoError(t, err)
	}
	assert.True(t, b.Pending("p1"))

	assert.Eventually(t, func() bool { return len(host.Changes()) > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	changes := host.Changes()
	require.Len(t, changes, 1)
	content := changes[0].Page.Content
	require.Len(t, content.Children, 1)
	assert.Equal(t, "three", content.Children[0].Props["label"])
	assert.Equal(t, "Page p1", changes[0].Page.Label, "host metadata is kept")
	assert.False(t, b.Pending("p1"))
}

func TestBackend_FlushSyncDeliversBeforeReturning(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Debounce: time.Hour})
	ctx := context.Background()

	_, err := b.Update(ctx, "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	_, err = b.Update(ctx, "p2", 0, buttonPage("y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, b.PendingIDs())

	require.NoError(t, b.FlushSync(ctx))
	assert.Len(t, host.Changes(), 2)
	assert.Empty(t, b.PendingIDs())
}

func TestBackend_FlushIsFireAndForget(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Debounce: time.Hour})

	_, err := b.Update(context.Background(), "p1", 0, buttonPage("x"))
	require.NoError(t, err)

	b.Flush()
	assert.Eventually(t, func() bool { return len(host.Changes()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBackend_CancelDropsNotification(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Debounce: 20 * time.Millisecond})

	_, err := b.Update(context.Background(), "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	b.Cancel("p1")
	assert.False(t, b.Pending("p1"))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, host.Changes())

	_, err = b.Get("p1")
	assert.NoError(t, err, "cancel only affects the notification")
}

func TestBackend_ConversionFailureSkipsNotification(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Converter: panickingConverter{}, Debounce: 10 * time.Millisecond})
	ctx := context.Background()

	resp, err := b.Update(ctx, "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Version)

	got, err := b.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, buttonPage("x"), got.Entry)

	created, err := b.Create(ctx, buttonPage("y"))
	require.NoError(t, err)
	assert.True(t, b.HasNativeEntry(created.ID))

	require.NoError(t, b.FlushSync(ctx))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, host.Changes())
}

func TestBackend_ConversionFailureDropsEarlierPending(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Converter: failingConverter{adapter.Default()}, Debounce: time.Hour})
	ctx := context.Background()

	_, err := b.Update(ctx, "p1", 0, buttonPage("ok"))
	require.NoError(t, err)
	require.True(t, b.Pending("p1"))

	resp, err := b.Update(ctx, "p1", 1, buttonPage("boom"))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Version)
	assert.False(t, b.Pending("p1"))

	require.NoError(t, b.FlushSync(ctx))
	assert.Empty(t, host.Changes())

	got, err := b.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, buttonPage("boom"), got.Entry)
}

func TestBackend_ConcurrentUpdatesAreSerialized(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Debounce: time.Hour})
	ctx := context.Background()

	const n = 50
	versions := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := b.Update(ctx, "p1", 0, buttonPage(strconv.Itoa(i)))
			assert.NoError(t, err)
			versions[i] = resp.Version
		}()
	}
	wg.Wait()

	sort.Ints(versions)
	for i, v := range versions {
		assert.Equal(t, i+1, v)
	}

	// the host gets the tree of the entry left in the cache
	require.NoError(t, b.FlushSync(ctx))
	changes := host.Changes()
	require.Len(t, changes, 1)
	got, err := b.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, n, got.Version)
	want := domain.ToAny(got.Entry.Children()[0].Fields["label"])
	require.Len(t, changes[0].Page.Content.Children, 1)
	assert.Equal(t, want, changes[0].Page.Content.Children[0].Props["label"])
}

// ─────────────────────────────────────────────────────────────
// Hygiene and provenance
// ─────────────────────────────────────────────────────────────

func TestBackend_HygieneDropsOrphans(t *testing.T) {
	cache := service.NewCacheStore()
	pages := newMemPages(canonicalPage("p1"), canonicalPage("p2"))
	ctx := context.Background()

	b := newBackend(t, service.BackendConfig{Cache: cache, Pages: pages})
	_, err := b.Update(ctx, "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	_, err = b.Update(ctx, "p2", 0, buttonPage("y"))
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	pages.remove("p1")
	b = newBackend(t, service.BackendConfig{Cache: cache, Pages: pages})

	_, err = b.Get("p1")
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)
	_, err = b.Get("p2")
	assert.NoError(t, err)
}

func TestBackend_HygieneInvalidatesSeededOnly(t *testing.T) {
	cache := service.NewCacheStore()
	pages := newMemPages(canonicalPage("seeded"), canonicalPage("native"))
	ctx := context.Background()

	b := newBackend(t, service.BackendConfig{Cache: cache, Pages: pages})
	_, err := b.Open(ctx, "seeded")
	require.NoError(t, err)
	_, err = b.Update(ctx, "native", 0, buttonPage("x"))
	require.NoError(t, err)

	b = newBackend(t, service.BackendConfig{Cache: cache, Pages: pages})
	_, err = b.Get("seeded")
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)
	assert.True(t, b.HasNativeEntry("native"))
}

func TestBackend_UpdateSupersedesSeeded(t *testing.T) {
	pages := newMemPages(canonicalPage("p2"))
	b := newBackend(t, service.BackendConfig{Pages: pages})
	ctx := context.Background()

	seeded, err := b.Open(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Box", seeded.Entry.Component)
	assert.False(t, b.HasNativeEntry("p2"))

	edited := buttonPage("Edited")
	_, err = b.Update(ctx, "p2", seeded.Version, edited)
	require.NoError(t, err)

	got, err := b.Get("p2")
	require.NoError(t, err)
	assert.Equal(t, edited, got.Entry)
	assert.True(t, b.HasNativeEntry("p2"))
}

func TestBackend_OpenPrefersPersistedNativeEntry(t *testing.T) {
	page := canonicalPage("p1")
	raw, err := json.Marshal(buttonPage("persisted"))
	require.NoError(t, err)
	page.NativeEntry = raw

	b := newBackend(t, service.BackendConfig{Pages: newMemPages(page), Converter: panickingConverter{}})
	resp, err := b.Open(context.Background(), "p1")
	require.NoError(t, err, "native hydration never calls the adapter")
	assert.Equal(t, "Column", resp.Entry.Component)
	assert.True(t, b.HasNativeEntry("p1"))
}

func TestBackend_OpenMissingPage(t *testing.T) {
	b := newBackend(t, service.BackendConfig{Pages: newMemPages()})
	_, err := b.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
}

func TestBackend_OpenConversionPanicIsContained(t *testing.T) {
	b := newBackend(t, service.BackendConfig{Pages: newMemPages(canonicalPage("p1")), Converter: panickingConverter{}})
	_, err := b.Open(context.Background(), "p1")
	assert.Error(t, err)
	_, err = b.Get("p1")
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)
}

func TestBackend_EvictCrashed(t *testing.T) {
	pages := newMemPages(canonicalPage("seeded"), canonicalPage("native"))
	b := newBackend(t, service.BackendConfig{Pages: pages})
	ctx := context.Background()

	_, err := b.Open(ctx, "seeded")
	require.NoError(t, err)
	_, err = b.Update(ctx, "native", 0, buttonPage("x"))
	require.NoError(t, err)

	evicted, err := b.EvictCrashed("seeded")
	require.NoError(t, err)
	assert.True(t, evicted)
	_, err = b.Get("seeded")
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)

	evicted, err = b.EvictCrashed("native")
	assert.ErrorIs(t, err, service.ErrNativeEntry)
	assert.False(t, evicted)
	_, err = b.Get("native")
	assert.NoError(t, err)

	evicted, err = b.EvictCrashed("unknown")
	assert.NoError(t, err)
	assert.False(t, evicted)
}

// ─────────────────────────────────────────────────────────────
// Deletion and lifecycle
// ─────────────────────────────────────────────────────────────

func TestBackend_DeletePageCancelsAndNotifies(t *testing.T) {
	host := &recordingHost{}
	b := newBackend(t, service.BackendConfig{Host: host, Debounce: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := b.Update(ctx, "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	b.DeletePage(ctx, "p1")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, host.Changes(), "late notification must not resurrect the page")
	assert.Equal(t, []string{"p1"}, host.Deletes())
	_, err = b.Get("p1")
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)
}

func TestBackend_CloseFlushesAndRejects(t *testing.T) {
	host := &recordingHost{}
	b, err := service.NewBackend(service.BackendConfig{Host: host, Debounce: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Update(ctx, "p1", 0, buttonPage("x"))
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))
	assert.Len(t, host.Changes(), 1)

	_, err = b.Update(ctx, "p1", 1, buttonPage("y"))
	assert.True(t, errors.Is(err, service.ErrClosed))
	_, err = b.Open(ctx, "p1")
	assert.ErrorIs(t, err, service.ErrClosed)
	assert.NoError(t, b.Close(ctx))
}

func TestBackend_NativeSnapshot(t *testing.T) {
	pages := newMemPages(canonicalPage("seeded"))
	b := newBackend(t, service.BackendConfig{Pages: pages})
	ctx := context.Background()

	_, err := b.Open(ctx, "seeded")
	require.NoError(t, err)
	_, err = b.Update(ctx, "native", 0, buttonPage("x"))
	require.NoError(t, err)

	snap := b.NativeSnapshot()
	require.Len(t, snap, 1)
	var entry domain.Entry
	require.NoError(t, json.Unmarshal(snap["native"], &entry))
	assert.Equal(t, buttonPage("x"), entry)
}
