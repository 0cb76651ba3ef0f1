package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
	"github.com/spf13/cast"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/project"
)

func (s *Server) registerPageTools() {
	// ── list_pages ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List all pages with their routes and cache state"),
	), s.handleListPages)

	// ── roundtrip_check ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("roundtrip_check",
		mcp.WithDescription("Convert a page to editor form and back, and report every field that did not survive"),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
	), s.handleRoundTrip)

	// ── page_undo ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("page_undo",
		mcp.WithDescription("Restore the previous saved version of a page"),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
	), s.handleUndo)

	// ── export_project ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_project",
		mcp.WithDescription("Export every page as a project file. Returns the JSON, or writes it when path is given."),
		mcp.WithString("path", mcp.Description("File to write (optional)")),
		mcp.WithBoolean("documents", mcp.Description("Also include each page in editor form")),
	), s.handleExportProject)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.pages.ListPages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return jsonResult(lo.Map(pages, func(p domain.Page, _ int) pageSummary {
		_, cached := s.docs.Cache().Get(p.ID)
		return pageSummary{
			ID:     p.ID,
			Label:  p.Label,
			Route:  p.Route,
			Order:  p.Order,
			Nodes:  p.Content.Count(),
			Cached: cached,
			Native: s.docs.HasNativeEntry(p.ID),
		}
	}))
}

func (s *Server) handleRoundTrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requirePageID(req)
	if err != nil {
		return nil, err
	}
	page, err := s.pages.GetPage(id)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	report := s.adapter.RoundTrip(page.Content)
	if report.Passed {
		return textResult(fmt.Sprintf("Page %s round-trips cleanly (%d nodes)", id, page.Content.Count())), nil
	}
	return jsonResult(map[string]any{
		"passed":      false,
		"differences": report.Differences,
	})
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requirePageID(req)
	if err != nil {
		return nil, err
	}
	page, err := s.pages.Undo(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("undo: %w", err)
	}
	return jsonResult(page.Stripped())
}

func (s *Server) handleExportProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.docs.FlushSync(ctx); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	pages, err := s.pages.Export()
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	withDocs := cast.ToBool(req.GetArguments()["documents"])
	f, err := project.Build(ctx, pages, s.adapter, withDocs)
	if err != nil {
		return nil, err
	}

	path := req.GetString("path", "")
	if path == "" {
		return jsonResult(f)
	}
	if err := project.Write(path, f); err != nil {
		return nil, err
	}
	s.emit(ctx, "project:exported", map[string]any{"path": path, "pages": len(f.Pages)})
	return textResult(fmt.Sprintf("Exported %d pages to %s", len(f.Pages), path)), nil
}
