package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pagebuilder/internal/config"
)

var (
	storeDSN    string
	httpAddr    string
	projectFile string
	autosave    string
	debounceFor time.Duration
	breakpoints []string
)

var rootCmd = &cobra.Command{
	Use:   "pagebuilder",
	Short: "Visual page editor backend: document cache, tree adapter and page store",
	Long: `pagebuilder keeps a visual editor's documents and the host's canonical page
trees in sync. Settings come from PAGEBUILDER_* environment variables; flags
override them.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&storeDSN, "store", "", "page store DSN: a sqlite path, postgres://, mysql:// or mongodb:// URL")
	f.StringVar(&httpAddr, "addr", "", "HTTP listen address")
	f.StringVar(&projectFile, "project", "", "project file to reimport when it changes on disk")
	f.StringVar(&autosave, "autosave", "", `autosave cron schedule, or "off"`)
	f.DurationVar(&debounceFor, "debounce", 0, "delay before editor changes reach the host")
	f.StringSliceVar(&breakpoints, "breakpoints", nil, "responsive breakpoint precedence, most specific first")
}

// loadConfig reads the environment and applies flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.StoreDSN = storeDSN
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = httpAddr
	}
	if flags.Changed("project") {
		cfg.ProjectFile = projectFile
	}
	if flags.Changed("autosave") {
		cfg.Autosave = strings.TrimSpace(autosave)
	}
	if flags.Changed("debounce") {
		cfg.Debounce = debounceFor
	}
	if flags.Changed("breakpoints") {
		cfg.Breakpoints = breakpoints
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
