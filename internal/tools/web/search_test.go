package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cortexlabs/cortex/internal/tools"
)

func TestSearchToolSearXNGBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"title":"Result One","url":"https://example.com/1","content":"snippet one"}]}`))
	}))
	defer server.Close()

	searchTool := NewSearchTool(SearchConfig{SearXNGURL: server.URL, CacheTTL: time.Minute}, nil)
	params, _ := json.Marshal(map[string]any{"query": "test query"})
	result, err := searchTool.Execute(context.Background(), tools.ToolContext{}, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Output)
	}
	if !strings.Contains(result.Output, "Result One") {
		t.Errorf("output missing result: %q", result.Output)
	}
	if result.Metadata["backend"] != string(BackendSearXNG) {
		t.Errorf("backend = %v, want searxng", result.Metadata["backend"])
	}
}

func TestSearchToolCachesRepeatedQueries(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"title":"Cached","url":"https://example.com","content":"c"}]}`))
	}))
	defer server.Close()

	searchTool := NewSearchTool(SearchConfig{SearXNGURL: server.URL, CacheTTL: time.Minute}, nil)
	params, _ := json.Marshal(map[string]any{"query": "repeat me"})

	if _, err := searchTool.Execute(context.Background(), tools.ToolContext{}, params); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := searchTool.Execute(context.Background(), tools.ToolContext{}, params); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if hits != 1 {
		t.Errorf("backend hit %d times, want 1 (second call should be served from cache)", hits)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	searchTool := NewSearchTool(SearchConfig{}, nil)
	result, err := searchTool.Execute(context.Background(), tools.ToolContext{}, json.RawMessage(`{"query":""}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for empty query")
	}
}
