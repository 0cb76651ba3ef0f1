package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/project"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *service.MockEmitter) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	home := domain.Page{
		ID: "home", Label: "Home", Route: "/",
		Content: domain.Node{ID: "root", Type: "stack", Children: []domain.Node{
			{ID: "h", Type: "heading", Props: map[string]any{"text": "Welcome", "level": 1}},
		}},
	}
	require.NoError(t, store.SavePage(&home))

	emitter := &service.MockEmitter{}
	pages := service.NewPageService(store, emitter)
	docs, err := service.NewBackend(service.BackendConfig{Pages: pages, Host: pages, Debounce: time.Hour})
	require.NoError(t, err)
	pages.Attach(docs)
	t.Cleanup(func() { docs.Close(context.Background()) })

	return New(Deps{Emitter: emitter, Docs: docs, Pages: pages}), emitter
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestDocGet_RequiresOpen(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleDocGet(ctx, call("doc_get", map[string]any{"pageId": "home"}))
	assert.ErrorIs(t, err, service.ErrNoCachedEntry)

	res, err := s.handleDocOpen(ctx, call("doc_open", map[string]any{"pageId": "home"}))
	require.NoError(t, err)
	var resp service.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "Column", resp.Entry.Component)

	_, err = s.handleDocGet(ctx, call("doc_get", map[string]any{"pageId": "home"}))
	assert.NoError(t, err)

	_, err = s.handleDocGet(ctx, call("doc_get", map[string]any{}))
	assert.ErrorContains(t, err, "pageId is required")
}

func TestDocCreate(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleDocCreate(context.Background(), call("doc_create", map[string]any{
		"entry": `{"component":"Column","children":[{"component":"Button","label":"Buy"}]}`,
	}))
	require.NoError(t, err)

	var resp service.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	page, err := s.pages.GetPage(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy", page.Content.Children[0].Props["label"])

	_, err = s.handleDocCreate(context.Background(), call("doc_create", map[string]any{"entry": `{"children":[]}`}))
	assert.ErrorContains(t, err, "invalid entry")
}

func TestDocUpdate_FlushPersists(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleDocUpdate(ctx, call("doc_update", map[string]any{
		"pageId":  "home",
		"version": 0,
		"entry":   `{"id":"root","component":"Column","children":[{"id":"b","component":"Button","label":"Later"}]}`,
	}))
	require.NoError(t, err)
	assert.True(t, s.docs.Pending("home"))

	_, err = s.handleDocUpdate(ctx, call("doc_update", map[string]any{
		"pageId":  "home",
		"version": float64(1),
		"flush":   true,
		"entry":   `{"id":"root","component":"Column","children":[{"id":"b","component":"Button","label":"Now"}]}`,
	}))
	require.NoError(t, err)
	assert.False(t, s.docs.Pending("home"))

	page, err := s.pages.GetPage("home")
	require.NoError(t, err)
	assert.Equal(t, "Now", page.Content.Children[0].Props["label"])
}

func TestListPages(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleListPages(context.Background(), call("list_pages", nil))
	require.NoError(t, err)

	var got []pageSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, pageSummary{ID: "home", Label: "Home", Route: "/", Nodes: 2}, got[0])
}

func TestRoundTripCheck(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleRoundTrip(context.Background(), call("roundtrip_check", map[string]any{"pageId": "home"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "round-trips cleanly")

	_, err = s.handleRoundTrip(context.Background(), call("roundtrip_check", map[string]any{"pageId": "nope"}))
	assert.ErrorIs(t, err, domain.ErrPageNotFound)
}

func TestExportProject(t *testing.T) {
	s, emitter := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleExportProject(ctx, call("export_project", map[string]any{"documents": true}))
	require.NoError(t, err)
	f, err := project.Decode([]byte(resultText(t, res)))
	require.NoError(t, err)
	assert.Len(t, f.Pages, 1)
	assert.Len(t, f.Documents, 1)

	path := filepath.Join(t.TempDir(), "out.json")
	_, err = s.handleExportProject(ctx, call("export_project", map[string]any{"path": path}))
	require.NoError(t, err)
	written, err := project.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "home", written.Pages[0].ID)
	assert.Len(t, emitter.Named("project:exported"), 1)
}

func TestPageUndo(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.handleUndo(context.Background(), call("page_undo", map[string]any{"pageId": "home"}))
	assert.ErrorIs(t, err, storage.ErrNoHistory)
}

func TestPageIDFromURI(t *testing.T) {
	assert.Equal(t, "abc-123", pageIDFromURI("pagebuilder://page/abc-123"))
	assert.Empty(t, pageIDFromURI("pagebuilder://page/abc/extra"))
	assert.Empty(t, pageIDFromURI("notes://page/abc"))
}

func TestPagesResource(t *testing.T) {
	s, _ := newTestServer(t)
	var req mcp.ReadResourceRequest
	req.Params.URI = "pagebuilder://page/home"

	contents, err := s.handlePageResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text
	assert.Contains(t, text, `"route": "/"`)
	assert.NotContains(t, text, "nativeEntry")
}
