package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/domain/cfi"
	"github.com/helixml/marginalia/domain/repository"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	book   = "library/moby-dick.epub"
	rangeA = "epubcfi(/6/4!/4/2,/1:0,/1:10)"
	rangeB = "epubcfi(/6/4!/4/2,/1:5,/1:20)"
	other  = "epubcfi(/6/8!/4/2,/1:0,/1:10)"
)

// fakeHighlights implements Highlights over a fixed slice.
type fakeHighlights struct {
	items []annotation.Annotation
	err   error
	last  repository.Query
}

func (f *fakeHighlights) List(_ context.Context, _ string, options ...repository.Option) ([]annotation.Annotation, error) {
	f.last = repository.Build(options...)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.last.Value("section"); ok {
		var out []annotation.Annotation
		for _, a := range f.items {
			if s, _ := a.Section(); s == v {
				out = append(out, a)
			}
		}
		return out, nil
	}
	return f.items, nil
}

func (f *fakeHighlights) Section(_ context.Context, _ string, location string) ([]annotation.Annotation, error) {
	ix := annotation.NewSectionIndex()
	ix.Rebuild(f.items)
	return ix.ForSection(location), nil
}

func (f *fakeHighlights) Overlapping(_ context.Context, _ string, identifier string) ([]annotation.Annotation, error) {
	return cfi.FindOverlapping(identifier, f.items), nil
}

func (f *fakeHighlights) Search(_ context.Context, _ string, query string) ([]annotation.Annotation, error) {
	var out []annotation.Annotation
	for _, a := range f.items {
		if a.Text() == query {
			out = append(out, a)
		}
	}
	return out, nil
}

func testHighlights() *fakeHighlights {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &fakeHighlights{items: []annotation.Annotation{
		annotation.New(book, rangeA, "Call me Ishmael", "Loomings", created).WithID(1),
		annotation.New(book, rangeB, "Some years ago", "Loomings", created.Add(time.Minute)).WithID(2),
		annotation.New(book, other, "whale", "The Carpet-Bag", created.Add(2*time.Minute)).WithID(3),
	}}
}

func testServer(h Highlights) *Server {
	return NewServer(h, nil, "test", nil)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	result := srv.MCPServer().HandleMessage(context.Background(), raw)
	resp, ok := result.(mcp.JSONRPCResponse)
	require.Truef(t, ok, "expected JSONRPCResponse, got %T: %+v", result, result)
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, dst))
}

// textFromContent extracts the text of the first content item. In-process
// responses may hold content as a map, so it round-trips through JSON.
func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	b, err := json.Marshal(result.Content[0])
	require.NoError(t, err)
	var tc struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(b, &tc))
	return tc.Text
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

func highlightsFrom(t *testing.T, result mcp.CallToolResult) []highlightResult {
	t.Helper()
	require.False(t, result.IsError, textFromContent(t, result))
	var out []highlightResult
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &out))
	return out
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer(testHighlights())
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	assert.Equal(t, "marginalia", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer(testHighlights())
	sendMessage(t, srv, "initialize", 1, initializeParams())

	resp := sendMessage(t, srv, "tools/list", 2, nil)
	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	tools := map[string]mcp.Tool{}
	for _, tool := range result.Tools {
		tools[tool.Name] = tool
	}
	require.Len(t, tools, 4)
	for _, name := range []string{"list_highlights", "find_overlapping", "compare_cfi", "search_highlights"} {
		assert.Contains(t, tools, name)
	}
	assert.ElementsMatch(t, []string{"document"}, tools["list_highlights"].InputSchema.Required)
	assert.ElementsMatch(t, []string{"document", "cfi"}, tools["find_overlapping"].InputSchema.Required)
}

func TestServer_ListHighlights(t *testing.T) {
	srv := testServer(testHighlights())

	all := highlightsFrom(t, callTool(t, srv, "list_highlights", map[string]any{"document": book}))
	require.Len(t, all, 3)
	assert.Equal(t, rangeA, all[0].CFI)
	assert.Equal(t, "/6/4", all[0].Section)
	assert.Equal(t, "2024-05-01T12:00:00Z", all[0].CreatedAt)
	assert.Contains(t, all[0].Link, "cfi=")

	byKey := highlightsFrom(t, callTool(t, srv, "list_highlights", map[string]any{"document": book, "section": "/6/8"}))
	require.Len(t, byKey, 1)
	assert.Equal(t, other, byKey[0].CFI)

	byLocation := highlightsFrom(t, callTool(t, srv, "list_highlights", map[string]any{
		"document": book,
		"section":  "epubcfi(/6/4!/4/12/1:0)",
	}))
	assert.Len(t, byLocation, 2)
}

func TestServer_ListHighlightsMissingDocument(t *testing.T) {
	srv := testServer(testHighlights())

	result := callTool(t, srv, "list_highlights", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, textFromContent(t, result), "document is required")
}

func TestServer_ListHighlightsStoreError(t *testing.T) {
	srv := testServer(&fakeHighlights{err: errors.New("database is locked")})

	result := callTool(t, srv, "list_highlights", map[string]any{"document": book})
	assert.True(t, result.IsError)
	assert.Contains(t, textFromContent(t, result), "database is locked")
}

func TestServer_FindOverlapping(t *testing.T) {
	srv := testServer(testHighlights())

	got := highlightsFrom(t, callTool(t, srv, "find_overlapping", map[string]any{
		"document": book,
		"cfi":      "epubcfi(/6/4!/4/2,/1:7,/1:8)",
	}))
	require.Len(t, got, 2)
	assert.Equal(t, rangeA, got[0].CFI)
	assert.Equal(t, rangeB, got[1].CFI)
}

func TestServer_CompareCFI(t *testing.T) {
	srv := testServer(testHighlights())

	result := callTool(t, srv, "compare_cfi", map[string]any{"a": rangeA, "b": rangeB})
	require.False(t, result.IsError)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(textFromContent(t, result)), &got))
	assert.Equal(t, true, got["valid_a"])
	assert.Equal(t, true, got["same_section"])
	assert.Equal(t, true, got["overlaps"])
	assert.Equal(t, false, got["a_contains_b"])

	result = callTool(t, srv, "compare_cfi", map[string]any{"a": rangeA})
	assert.True(t, result.IsError)
}

func TestServer_SearchHighlights(t *testing.T) {
	srv := testServer(testHighlights())

	got := highlightsFrom(t, callTool(t, srv, "search_highlights", map[string]any{"document": book, "query": "whale"}))
	require.Len(t, got, 1)
	assert.Equal(t, other, got[0].CFI)

	result := callTool(t, srv, "search_highlights", map[string]any{"document": book, "query": "  "})
	assert.True(t, result.IsError)
}

var _ Highlights = (*fakeHighlights)(nil)
