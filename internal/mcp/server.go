package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/service"
)

// EventEmitter is satisfied by service.EventEmitter implementations.
type EventEmitter = service.EventEmitter

// Server is the MCP server for the page builder.
// It exposes the document API and page set so AI agents can edit pages the
// same way the visual editor does.
type Server struct {
	mcp     *server.MCPServer
	emitter EventEmitter

	docs    *service.Backend
	pages   *service.PageService
	adapter *adapter.Adapter
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Emitter EventEmitter
	Docs    *service.Backend
	Pages   *service.PageService
	Adapter *adapter.Adapter
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Emitter == nil {
		deps.Emitter = &service.MockEmitter{}
	}
	if deps.Adapter == nil {
		deps.Adapter = adapter.Default()
	}
	s := &Server{
		emitter: deps.Emitter,
		docs:    deps.Docs,
		pages:   deps.Pages,
		adapter: deps.Adapter,
	}

	s.mcp = server.NewMCPServer(
		"pagebuilder-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocTools()
	s.registerPageTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// MCP returns the underlying server, e.g. for mounting over HTTP.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requirePageID returns the pageId argument or an error.
func requirePageID(req mcp.CallToolRequest) (string, error) {
	id := req.GetString("pageId", "")
	if id == "" {
		return "", fmt.Errorf("pageId is required")
	}
	return id, nil
}

func (s *Server) emit(ctx context.Context, event string, data any) {
	s.emitter.Emit(ctx, event, data)
}
