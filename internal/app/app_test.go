package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/project"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		DataDir:      dir,
		StoreDSN:     filepath.Join(dir, "pages.db"),
		HTTPAddr:     "127.0.0.1:0",
		MaxBodyBytes: 1 << 20,
		Debounce:     time.Hour,
		Breakpoints:  []string{"desktop", "base"},
		Autosave:     "off",
	}
}

func TestApp_ShutdownPersistsPendingEdits(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := New(cfg, WithEventHub())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Handler())
	body := `{"component":"Column","children":[{"id":"b","component":"Button","label":"Kept"}]}`
	resp, err := http.Post(srv.URL+"/api/docs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	srv.Close()

	ids, err := a.Pages().PageIDs()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.NoError(t, a.Shutdown(ctx))

	reopened, err := New(cfg)
	require.NoError(t, err)
	defer reopened.Shutdown(ctx)

	page, err := reopened.Pages().GetPage(ids[0])
	require.NoError(t, err)
	assert.True(t, page.HasNativeEntry())

	doc, err := reopened.Docs().Open(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Column", doc.Entry.Component)
	assert.True(t, reopened.Docs().HasNativeEntry(ids[0]))
}

func TestApp_WatchesProjectFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProjectFile = filepath.Join(cfg.DataDir, "project.json")
	ctx := context.Background()

	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer a.Shutdown(ctx)

	f, err := project.Build(ctx, []domain.Page{{
		ID: "landing", Label: "Landing", Route: "/",
		Content: domain.Node{ID: "r", Type: "text", Props: map[string]any{"text": "hello"}},
	}}, nil, false)
	require.NoError(t, err)
	require.NoError(t, project.Write(cfg.ProjectFile, f))

	require.Eventually(t, func() bool {
		_, err := a.Pages().GetPage("landing")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Autosave = "sometimes"
	_, err := New(cfg)
	assert.Error(t, err)
}
