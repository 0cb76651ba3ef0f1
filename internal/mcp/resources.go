package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pagesURI      = "pagebuilder://pages"
	pageURIPrefix = "pagebuilder://page/"
)

func (s *Server) registerResources() {
	// ── pagebuilder://pages ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pagesURI,
		"All Pages",
		mcp.WithMIMEType("application/json"),
	), s.handlePagesResource)

	// ── pagebuilder://page/{pageId} ────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pageURIPrefix+"{pageId}",
			"Canonical Page Tree",
		),
		s.handlePageResource,
	)
}

func (s *Server) handlePagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pages, err := s.pages.Export()
	if err != nil {
		return nil, err
	}

	type route struct {
		ID    string `json:"id"`
		Label string `json:"label"`
		Route string `json:"route"`
	}
	routes := make([]route, 0, len(pages))
	for _, p := range pages {
		routes = append(routes, route{ID: p.ID, Label: p.Label, Route: p.Route})
	}

	data, _ := json.MarshalIndent(routes, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pagesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePageResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := pageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}

	page, err := s.pages.GetPage(pageID)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(page.Stripped(), "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// pageIDFromURI extracts the page ID from "pagebuilder://page/{id}".
func pageIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, pageURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
