package project

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/domain"
)

func samplePages() []domain.Page {
	return []domain.Page{
		{
			ID: "home", Label: "Home", Route: "/", Order: 0,
			Content: domain.Node{ID: "root", Type: "stack", Children: []domain.Node{
				{ID: "b1", Type: "button", Props: map[string]any{"label": "Go"}},
			}},
			NativeEntry: json.RawMessage(`{"component":"Column"}`),
		},
		{
			ID: "about", Label: "About", Route: "/about", Order: 1,
			Content: domain.Node{ID: "root2", Type: "text", Props: map[string]any{"text": "hi"}},
		},
	}
}

func TestBuild_StripsNativeEntries(t *testing.T) {
	f, err := Build(context.Background(), samplePages(), nil, false)
	require.NoError(t, err)

	assert.Equal(t, Version, f.Version)
	require.Len(t, f.Pages, 2)
	for _, p := range f.Pages {
		assert.False(t, p.HasNativeEntry(), p.ID)
	}
	assert.Empty(t, f.Documents)
}

func TestBuild_WithDocuments(t *testing.T) {
	f, err := Build(context.Background(), samplePages(), adapter.Default(), true)
	require.NoError(t, err)
	require.Len(t, f.Documents, 2)
	assert.Equal(t, "home", f.Documents[0].ID)
	assert.Equal(t, "Column", f.Documents[0].Root.Component)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "project.json")
	f, err := Build(context.Background(), samplePages(), adapter.Default(), true)
	require.NoError(t, err)

	require.NoError(t, Write(path, f))
	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, f.Pages[0].Content, got.Pages[0].Content)
	assert.Equal(t, f.Pages[1].Route, got.Pages[1].Route)
	assert.Len(t, got.Documents, 2)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "nativeEntry")
}

func TestWrite_StripsEvenUnbuiltFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &File{Pages: samplePages()}))
	assert.NotContains(t, buf.String(), "nativeEntry")
	assert.Contains(t, buf.String(), `"version": 1`)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte(`{"pages":[]}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"version":99,"pages":[]}`))
	assert.ErrorContains(t, err, "newer")

	_, err = Decode([]byte(`{"version":1,"pages":[{"id":"p"}]}`))
	assert.Error(t, err)
}

func TestCanonicalPages_FromDocumentsOnly(t *testing.T) {
	data := []byte(`{"version":1,"documents":[{"id":"p1","label":"One","route":"/one","root":{"id":"r","component":"Column","children":[{"id":"b","component":"Button","label":"Hi"}]}}]}`)
	f, err := Decode(data)
	require.NoError(t, err)

	pages, err := f.CanonicalPages(context.Background(), adapter.Default())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "/one", pages[0].Route)
	assert.Equal(t, "stack", pages[0].Content.Type)
	assert.Equal(t, "button", pages[0].Content.Children[0].Type)

	_, err = f.CanonicalPages(context.Background(), nil)
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────
// Watcher
// ─────────────────────────────────────────────────────────────

type recordingImporter struct {
	mu    sync.Mutex
	calls [][]domain.Page
}

func (r *recordingImporter) Import(_ context.Context, pages []domain.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, pages)
	return nil
}

func (r *recordingImporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWatcher_ReimportsOutOfBandWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	f, err := Build(context.Background(), samplePages(), nil, false)
	require.NoError(t, err)
	require.NoError(t, Write(path, f))

	target := &recordingImporter{}
	w := NewWatcher(path, adapter.Default(), target, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	f.Pages = f.Pages[:1]
	f.Pages[0].Label = "Changed elsewhere"
	require.NoError(t, Write(path, f))

	require.Eventually(t, func() bool { return target.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Changed elsewhere", target.calls[0][0].Label)
	assert.Equal(t, 1, w.Imported())
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	target := &recordingImporter{}
	w := NewWatcher(path, nil, target, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	f, err := Build(context.Background(), samplePages(), nil, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(f))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, target.count())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "p.json"), nil, &recordingImporter{}, 0)
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
