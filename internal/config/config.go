package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"

	"pagebuilder/internal/debounce"
	"pagebuilder/internal/schema"
)

type Config struct {
	// Storage
	DataDir  string
	StoreDSN string

	// HTTP API and event socket
	HTTPAddr     string
	MaxBodyBytes int64

	// Editor sync
	Debounce    time.Duration
	Breakpoints []string

	// Persistence schedule
	Autosave string

	// Optional project file reimported when it changes on disk
	ProjectFile string
}

func Load() Config {
	homeDir, _ := os.UserHomeDir()
	cfg := Config{
		DataDir:  envOr("PAGEBUILDER_DATA_DIR", filepath.Join(homeDir, ".local", "share", "pagebuilder")),
		StoreDSN: os.Getenv("PAGEBUILDER_STORE_DSN"),

		HTTPAddr:     envOr("PAGEBUILDER_HTTP_ADDR", ":8787"),
		MaxBodyBytes: envInt64("PAGEBUILDER_MAX_BODY_BYTES", 8<<20), // 8MB

		Debounce:    envDuration("PAGEBUILDER_DEBOUNCE", debounce.DefaultWait),
		Breakpoints: envList("PAGEBUILDER_BREAKPOINTS", schema.DefaultBreakpoints),

		Autosave: envOr("PAGEBUILDER_AUTOSAVE", "@every 30s"),

		ProjectFile: os.Getenv("PAGEBUILDER_PROJECT_FILE"),
	}

	if cfg.StoreDSN == "" {
		cfg.StoreDSN = filepath.Join(cfg.DataDir, "pages.db")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = debounce.DefaultWait
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	return cfg
}

func (c Config) Validate() error {
	if c.StoreDSN == "" {
		return fmt.Errorf("PAGEBUILDER_STORE_DSN is required")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("PAGEBUILDER_HTTP_ADDR is required")
	}
	if c.Debounce > 10*time.Second {
		return fmt.Errorf("PAGEBUILDER_DEBOUNCE %s is too long (max 10s)", c.Debounce)
	}
	if len(c.Breakpoints) == 0 {
		return fmt.Errorf("PAGEBUILDER_BREAKPOINTS must name at least one breakpoint")
	}
	if c.Autosave != "" && c.Autosave != "off" {
		if _, err := cron.ParseStandard(c.Autosave); err != nil {
			return fmt.Errorf("PAGEBUILDER_AUTOSAVE %q: %w", c.Autosave, err)
		}
	}
	return nil
}

// AutosaveEnabled reports whether a save schedule is configured.
func (c Config) AutosaveEnabled() bool {
	return c.Autosave != "" && c.Autosave != "off"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := cast.ToInt64E(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
