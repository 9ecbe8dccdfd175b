package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/helixml/marginalia"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/infrastructure/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	book  = "library/moby-dick.epub"
	first = "epubcfi(/6/4!/4/2,/1:0,/1:10)"
)

func newTestClient(t *testing.T) *marginalia.Client {
	t.Helper()
	tmpDir := t.TempDir()
	client, err := marginalia.New(
		marginalia.WithSQLite(filepath.Join(tmpDir, "test.db")),
		marginalia.WithDataDir(tmpDir),
		marginalia.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func mcpRequest(t *testing.T, method string, id int, params map[string]any) []byte {
	t.Helper()
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func postMCP(t *testing.T, handler http.Handler, body []byte, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// initMCPSession sends an initialize request and returns the session ID.
func initMCPSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	body := mcpRequest(t, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0.0.1"},
	})
	w := postMCP(t, handler, body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := w.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID, "initialize did not return a session ID")
	return sessionID
}

// toolResultText decodes the JSON-RPC response from a tools/call and returns
// the text content and whether the tool reported an error.
func toolResultText(t *testing.T, w *httptest.ResponseRecorder) (string, bool) {
	t.Helper()
	var resp struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	if len(resp.Result.Content) == 0 {
		return "", resp.Result.IsError
	}
	return resp.Result.Content[0].Text, resp.Result.IsError
}

func TestMCPEndpoint_Initialize(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), "1.0.0", nil).Handler()

	body := mcpRequest(t, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "0.0.1"},
	})
	w := postMCP(t, handler, body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result struct {
			ServerInfo struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
			Capabilities struct {
				Tools json.RawMessage `json:"tools"`
			} `json:"capabilities"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "marginalia", resp.Result.ServerInfo.Name)
	assert.Equal(t, "1.0.0", resp.Result.ServerInfo.Version)
	assert.NotNil(t, resp.Result.Capabilities.Tools)
}

func TestMCPEndpoint_ListTools(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), "1.0.0", nil).Handler()
	sessionID := initMCPSession(t, handler)

	w := postMCP(t, handler, mcpRequest(t, "tools/list", 2, nil), sessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"list_highlights", "find_overlapping", "compare_cfi", "search_highlights"}, names)
}

func TestMCPEndpoint_RejectsInvalidContentType(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), "1.0.0", nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMCPEndpoint_ListsStoredHighlights(t *testing.T) {
	client := newTestClient(t)
	_, _, err := client.Annotations.Save(context.Background(), book,
		annotation.New(book, first, "Call me Ishmael", "Loomings", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	handler := api.NewAPIServer(client, "1.0.0", nil).Handler()
	sessionID := initMCPSession(t, handler)

	body := mcpRequest(t, "tools/call", 2, map[string]any{
		"name":      "list_highlights",
		"arguments": map[string]any{"document": book},
	})
	w := postMCP(t, handler, body, sessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	text, isError := toolResultText(t, w)
	require.False(t, isError, text)
	var items []struct {
		CFI  string `json:"cfi"`
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &items))
	require.Len(t, items, 1)
	assert.Equal(t, first, items[0].CFI)
	assert.Equal(t, "Call me Ishmael", items[0].Text)
}

// MCP must work through the full middleware stack built by ListenAndServe:
// chi's Timeout wrapper breaks streamable session headers.
func TestMCPEndpoint_ServerMiddlewareStack(t *testing.T) {
	apiServer := api.NewAPIServer(newTestClient(t), "1.0.0", nil)
	apiServer.MountRoutes()

	srv := api.NewServer("", []string{"*"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.Router().Mount("/", apiServer.Router())
	handler := srv.Router()

	sessionID := initMCPSession(t, handler)

	w := postMCP(t, handler, mcpRequest(t, "tools/list", 2, nil), sessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	callBody := mcpRequest(t, "tools/call", 3, map[string]any{
		"name":      "compare_cfi",
		"arguments": map[string]any{"a": first, "b": first},
	})
	w = postMCP(t, handler, callBody, sessionID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	text, isError := toolResultText(t, w)
	require.False(t, isError, text)
	assert.Contains(t, text, `"overlaps":true`)
}
