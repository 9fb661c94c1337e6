package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractorPullsTitleAndMainContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Example Page</title>
			<meta name="description" content="A test page."></head>
			<body><nav>skip me</nav>
			<main><h1>Heading</h1><p>Hello, world.</p>
			<p>` + strings.Repeat("padding content here. ", 20) + `</p></main>
			<footer>skip me too</footer></body></html>`))
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	content, err := extractor.Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(content, "Example Page") {
		t.Errorf("missing title in extracted content: %q", content)
	}
	if !strings.Contains(content, "Hello, world.") {
		t.Errorf("missing main content: %q", content)
	}
	if strings.Contains(content, "skip me") {
		t.Errorf("nav/footer content was not stripped: %q", content)
	}
}

func TestExtractorRejectsNonHTMLContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	extractor := NewExtractorForTesting()
	if _, err := extractor.Extract(context.Background(), server.URL); err == nil {
		t.Fatalf("expected unsupported content-type rejection")
	}
}
