package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAGEBUILDER_DATA_DIR", "/tmp/pb")
	t.Setenv("PAGEBUILDER_STORE_DSN", "")
	t.Setenv("PAGEBUILDER_DEBOUNCE", "")
	t.Setenv("PAGEBUILDER_BREAKPOINTS", "")
	t.Setenv("PAGEBUILDER_AUTOSAVE", "")

	cfg := Load()
	assert.Equal(t, filepath.Join("/tmp/pb", "pages.db"), cfg.StoreDSN)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"desktop", "tablet", "mobile", "base"}, cfg.Breakpoints)
	assert.True(t, cfg.AutosaveEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAGEBUILDER_STORE_DSN", "postgres://localhost/pages")
	t.Setenv("PAGEBUILDER_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("PAGEBUILDER_DEBOUNCE", "750ms")
	t.Setenv("PAGEBUILDER_BREAKPOINTS", "wide, narrow ,")
	t.Setenv("PAGEBUILDER_AUTOSAVE", "off")
	t.Setenv("PAGEBUILDER_MAX_BODY_BYTES", "1024")

	cfg := Load()
	assert.Equal(t, "postgres://localhost/pages", cfg.StoreDSN)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.Debounce)
	assert.Equal(t, []string{"wide", "narrow"}, cfg.Breakpoints)
	assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	assert.False(t, cfg.AutosaveEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("PAGEBUILDER_DEBOUNCE", "soon")
	t.Setenv("PAGEBUILDER_MAX_BODY_BYTES", "lots")

	cfg := Load()
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, int64(8<<20), cfg.MaxBodyBytes)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDSN: "x.db", HTTPAddr: ":1", Debounce: time.Second, Breakpoints: []string{"base"}}
	require.NoError(t, base.Validate())

	bad := base
	bad.Autosave = "whenever"
	assert.ErrorContains(t, bad.Validate(), "PAGEBUILDER_AUTOSAVE")

	bad = base
	bad.Debounce = time.Minute
	assert.Error(t, bad.Validate())

	bad = base
	bad.Breakpoints = nil
	assert.Error(t, bad.Validate())
}
