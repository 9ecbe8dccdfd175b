// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/domain/repository"
	"github.com/helixml/marginalia/infrastructure/notes"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Highlights provides the highlight queries used by MCP tools.
type Highlights interface {
	List(ctx context.Context, document string, options ...repository.Option) ([]annotation.Annotation, error)
	Section(ctx context.Context, document, location string) ([]annotation.Annotation, error)
	Overlapping(ctx context.Context, document, identifier string) ([]annotation.Annotation, error)
	Search(ctx context.Context, document, query string) ([]annotation.Annotation, error)
}

// Server wraps the MCP server with highlight tools.
type Server struct {
	mcpServer  *server.MCPServer
	highlights Highlights
	comparator *cfi.Comparator
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(highlights Highlights, comparator *cfi.Comparator, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if comparator == nil {
		comparator = cfi.Default()
	}

	s := &Server{
		highlights: highlights,
		comparator: comparator,
		logger:     logger,
	}

	mcpServer := server.NewMCPServer(
		"marginalia",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("list_highlights",
		mcp.WithDescription("List the highlights of a book in creation order, optionally limited to one section"),
		mcp.WithString("document",
			mcp.Required(),
			mcp.Description("Path of the book"),
		),
		mcp.WithString("section",
			mcp.Description("Section key such as /6/4, or any fragment identifier inside the section"),
		),
	), s.handleListHighlights)

	mcpServer.AddTool(mcp.NewTool("find_overlapping",
		mcp.WithDescription("Find highlights whose range overlaps a fragment identifier"),
		mcp.WithString("document",
			mcp.Required(),
			mcp.Description("Path of the book"),
		),
		mcp.WithString("cfi",
			mcp.Required(),
			mcp.Description("EPUB fragment identifier, e.g. epubcfi(/6/8!/4/2,/1:0,/1:10)"),
		),
	), s.handleFindOverlapping)

	mcpServer.AddTool(mcp.NewTool("compare_cfi",
		mcp.WithDescription("Report validity, sections, overlap and containment of two fragment identifiers"),
		mcp.WithString("a",
			mcp.Required(),
			mcp.Description("First fragment identifier"),
		),
		mcp.WithString("b",
			mcp.Required(),
			mcp.Description("Second fragment identifier"),
		),
	), s.handleCompare)

	mcpServer.AddTool(mcp.NewTool("search_highlights",
		mcp.WithDescription("Search highlight text and notes of a book, ignoring case"),
		mcp.WithString("document",
			mcp.Required(),
			mcp.Description("Path of the book"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to look for"),
		),
	), s.handleSearch)
}

type highlightResult struct {
	CFI       string   `json:"cfi"`
	Section   string   `json:"section,omitempty"`
	Text      string   `json:"text"`
	Chapter   string   `json:"chapter,omitempty"`
	Note      string   `json:"note,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Color     string   `json:"color"`
	CreatedAt string   `json:"created_at"`
	Link      string   `json:"link"`
}

func (s *Server) handleListHighlights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	section := strings.TrimSpace(request.GetString("section", ""))

	var items []annotation.Annotation
	switch {
	case section == "":
		items, err = s.highlights.List(ctx, document)
	case strings.HasPrefix(section, "epubcfi("):
		items, err = s.highlights.Section(ctx, document, section)
	default:
		items, err = s.highlights.List(ctx, document, annotation.WithSection(section))
	}
	if err != nil {
		s.logger.Error("list highlights failed", slog.String("document", document), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("list highlights failed: %v", err)), nil
	}
	return jsonResult(toResults(document, items))
}

func (s *Server) handleFindOverlapping(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	identifier, err := request.RequireString("cfi")
	if err != nil {
		return mcp.NewToolResultError("cfi is required"), nil
	}

	items, err := s.highlights.Overlapping(ctx, document, identifier)
	if err != nil {
		s.logger.Error("find overlapping failed", slog.String("document", document), slog.String("cfi", identifier), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("find overlapping failed: %v", err)), nil
	}
	return jsonResult(toResults(document, items))
}

func (s *Server) handleCompare(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := request.RequireString("a")
	if err != nil {
		return mcp.NewToolResultError("a is required"), nil
	}
	b, err := request.RequireString("b")
	if err != nil {
		return mcp.NewToolResultError("b is required"), nil
	}

	r := s.comparator.Relate(a, b)
	return jsonResult(struct {
		ValidA      bool   `json:"valid_a"`
		ValidB      bool   `json:"valid_b"`
		SectionA    string `json:"section_a,omitempty"`
		SectionB    string `json:"section_b,omitempty"`
		SameSection bool   `json:"same_section"`
		Overlaps    bool   `json:"overlaps"`
		AContainsB  bool   `json:"a_contains_b"`
		BContainsA  bool   `json:"b_contains_a"`
	}{
		ValidA:      r.ValidA,
		ValidB:      r.ValidB,
		SectionA:    r.SectionA,
		SectionB:    r.SectionB,
		SameSection: r.SameSection,
		Overlaps:    r.Overlaps,
		AContainsB:  r.AContainsB,
		BContainsA:  r.BContainsA,
	})
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	items, err := s.highlights.Search(ctx, document, query)
	if err != nil {
		s.logger.Error("search failed", slog.String("document", document), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(toResults(document, items))
}

func toResults(document string, items []annotation.Annotation) []highlightResult {
	results := make([]highlightResult, len(items))
	for i, a := range items {
		section, _ := a.Section()
		results[i] = highlightResult{
			CFI:       a.CFI(),
			Section:   section,
			Text:      a.Text(),
			Chapter:   a.Chapter(),
			Note:      a.Note(),
			Tags:      a.Tags(),
			Color:     a.Color(),
			CreatedAt: a.CreatedAt().UTC().Format(time.RFC3339),
			Link:      notes.DeepLink(document, a.CFI()),
		}
	}
	return results
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
