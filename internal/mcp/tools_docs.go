package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"
)

func (s *Server) registerDocTools() {
	// ── doc_get ────────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("doc_get",
		mcp.WithDescription("Get the editor document cached for a page. Fails if the page was never opened or created; call doc_open first."),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
	), s.handleDocGet)

	// ── doc_open ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("doc_open",
		mcp.WithDescription("Load a page into the editor document cache and return its document"),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
	), s.handleDocOpen)

	// ── doc_create ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("doc_create",
		mcp.WithDescription("Create a new page from an editor entry tree"),
		mcp.WithString("entry",
			mcp.Description(`Entry tree as JSON, e.g. {"component":"Column","children":[{"component":"Button","label":"Save"}]}`),
			mcp.Required(),
		),
	), s.handleDocCreate)

	// ── doc_update ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("doc_update",
		mcp.WithDescription("Replace a page's editor document. The host page is updated after the debounce window, or immediately with flush=true."),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
		mcp.WithNumber("version", mcp.Description("Version the change is based on")),
		mcp.WithString("entry", mcp.Description("Entry tree as JSON"), mcp.Required()),
		mcp.WithBoolean("flush", mcp.Description("Push the change to the host page before returning")),
	), s.handleDocUpdate)
}

func (s *Server) handleDocGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requirePageID(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.docs.Get(id)
	if err != nil {
		return nil, err
	}
	return jsonResult(resp)
}

func (s *Server) handleDocOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requirePageID(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.docs.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonResult(resp)
}

func (s *Server) handleDocCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := parseEntry(req.GetString("entry", ""))
	if err != nil {
		return nil, err
	}
	resp, err := s.docs.Create(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return jsonResult(resp)
}

func (s *Server) handleDocUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requirePageID(req)
	if err != nil {
		return nil, err
	}
	entry, err := parseEntry(req.GetString("entry", ""))
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	version := cast.ToInt(args["version"])

	resp, err := s.docs.Update(ctx, id, version, entry)
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}
	if cast.ToBool(args["flush"]) {
		if err := s.docs.FlushSync(ctx); err != nil {
			return nil, fmt.Errorf("flush: %w", err)
		}
	}
	return jsonResult(resp)
}
