package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pagebuilder/internal/app"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/project"
)

var withDocuments bool

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every page as a project file (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOneShot(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer a.Shutdown(context.Background())

		pages, err := a.Pages().Export()
		if err != nil {
			return err
		}
		f, err := project.Build(ctx, pages, a.Adapter(), withDocuments)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return project.Encode(cmd.OutOrStdout(), f)
		}
		if err := project.Write(args[0], f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d pages to %s\n", len(f.Pages), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace every page with the contents of a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := project.Read(args[0])
		if err != nil {
			return err
		}
		a, err := openOneShot(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer a.Shutdown(context.Background())

		pages, err := f.CanonicalPages(ctx, a.Adapter())
		if err != nil {
			return err
		}
		if err := a.Pages().Import(ctx, pages); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "imported %d pages from %s\n", len(pages), args[0])
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [pageId...]",
	Short: "Round-trip pages through editor form and report lossy fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openOneShot(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown(context.Background())

		var pages []domain.Page
		if len(args) == 0 {
			if pages, err = a.Pages().ListPages(); err != nil {
				return err
			}
		}
		for _, id := range args {
			p, err := a.Pages().GetPage(id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			pages = append(pages, *p)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, p := range pages {
			report := a.Adapter().RoundTrip(p.Content)
			if report.Passed {
				fmt.Fprintf(out, "ok    %s (%s)\n", p.ID, p.Route)
				continue
			}
			failed++
			fmt.Fprintf(out, "FAIL  %s (%s)\n", p.ID, p.Route)
			for _, d := range report.Differences {
				fmt.Fprintf(out, "      %s: want %v, got %v\n", d.Path, d.Want, d.Got)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d pages do not round-trip", failed, len(pages))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&withDocuments, "documents", false, "include each page in editor form")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(checkCmd)
}

// openOneShot opens the store for a single command, without background jobs.
func openOneShot(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.Autosave = "off"
	cfg.ProjectFile = ""
	return app.New(cfg)
}
