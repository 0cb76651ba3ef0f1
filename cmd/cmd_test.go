package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagebuilder/internal/project"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestImportExportCheck(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PAGEBUILDER_DATA_DIR", dir)
	store := filepath.Join(dir, "pages.db")

	in := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(in, []byte(`{
		"version": 1,
		"pages": [
			{"id": "home", "label": "Home", "route": "/", "content": {"id": "root", "type": "stack", "children": [
				{"id": "b", "type": "button", "props": {"label": "Go"}}
			]}}
		]
	}`), 0o644))

	out, err := run(t, "import", in, "--store", store)
	require.NoError(t, err, out)
	assert.Contains(t, out, "imported 1 pages")

	exported := filepath.Join(dir, "out.json")
	out, err = run(t, "export", exported, "--store", store, "--documents")
	require.NoError(t, err, out)

	f, err := project.Read(exported)
	require.NoError(t, err)
	require.Len(t, f.Pages, 1)
	assert.Equal(t, "home", f.Pages[0].ID)
	assert.Len(t, f.Documents, 1)

	out, err = run(t, "check", "--store", store)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ok    home (/)")

	_, err = run(t, "check", "missing", "--store", store)
	assert.Error(t, err)
}

func TestImportRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"pages":[]}`), 0o644))

	_, err := run(t, "import", in, "--store", filepath.Join(dir, "pages.db"))
	assert.ErrorContains(t, err, "invalid project file")
}

func TestLoadConfigRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "export", "--store", filepath.Join(dir, "p.db"), "--autosave", "often")
	assert.ErrorContains(t, err, "config")
}
