package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("build_page",
		mcp.WithPromptDescription("Guide through building a new page with the editor document tools"),
		mcp.WithArgument("purpose",
			mcp.ArgumentDescription("What the page is for, e.g. pricing or team directory"),
			mcp.RequiredArgument(),
		),
	), s.handleBuildPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("audit_pages",
		mcp.WithPromptDescription("Check every page for fields that are lost when converting to editor form"),
	), s.handleAuditPrompt)
}

func (s *Server) handleBuildPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	purpose := req.Params.Arguments["purpose"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Build a page for: %s", purpose),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a page for "%s". Follow these steps:

1. Use list_pages to see existing routes so the new page does not clash
2. Draft an entry tree. Available components: %s
3. Create the page with doc_create and note the returned id and version
4. Refine it with doc_update, passing the last version you received, and flush=true on the final edit
5. Run roundtrip_check on the page and fix any reported differences

Keep the tree shallow and give every entry a stable id.`, purpose, strings.Join(s.componentNames(), ", ")),
				},
			},
		},
	}, nil
}

func (s *Server) handleAuditPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Audit pages for lossy conversions",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: `Audit every page. Follow these steps:

1. Use list_pages to get every page id
2. Run roundtrip_check on each page
3. Report the pages that fail, grouped by the JSON path of each difference
4. Suggest which node types or props need a registry or prop table change`,
				},
			},
		},
	}, nil
}

func (s *Server) componentNames() []string {
	r := s.adapter.Registry()
	var out []string
	for _, t := range r.Types() {
		if c, ok := r.Component(t); ok {
			out = append(out, c)
		}
	}
	return out
}
