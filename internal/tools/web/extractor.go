package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Extractor fetches a URL and reduces its HTML to readable text, a
// simplified readability pass: strip chrome tags, pull title and
// description, then fall back through content containers to the body.
type Extractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool
}

// NewExtractor creates an Extractor with SSRF protection enabled.
func NewExtractor() *Extractor {
	return &Extractor{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// NewExtractorForTesting creates an Extractor that allows localhost
// targets, for use against httptest servers only.
func NewExtractorForTesting() *Extractor {
	return &Extractor{httpClient: &http.Client{Timeout: 15 * time.Second}, skipSSRFCheck: true}
}

// Extract fetches targetURL and returns its readable text content.
func (e *Extractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if !e.skipSSRFCheck {
		if err := validateURLForSSRF(targetURL); err != nil {
			return "", fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CortexBot/1.0)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	content := extractReadableContent(string(body))
	if len(content) > 10000 {
		content = content[:10000] + "..."
	}
	return content, nil
}

func extractReadableContent(html string) string {
	for _, tag := range []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"} {
		html = removeTag(html, tag)
	}

	title := extractTitle(html)
	description := extractMetaDescription(html)
	content := extractMainContent(html)
	if content == "" {
		content = extractFromBody(html)
	}
	content = cleanText(content)

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", title)
	}
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n\n", description)
	}
	b.WriteString(content)
	return b.String()
}

func removeTag(html, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

func extractTitle(html string) string {
	if m := regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<h1[^>]*>(.*?)</h1>`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	return ""
}

func extractMetaDescription(html string) string {
	if m := regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	if m := regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`).FindStringSubmatch(html); len(m) > 1 {
		return cleanText(m[1])
	}
	return ""
}

var mainContentPatterns = []string{
	`(?is)<main[^>]*>(.*?)</main>`,
	`(?is)<article[^>]*>(.*?)</article>`,
	`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`,
	`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`,
	`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`,
	`(?is)<div[^>]*id=["']main["'][^>]*>(.*?)</div>`,
	`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`,
}

func extractMainContent(html string) string {
	for _, pattern := range mainContentPatterns {
		if m := regexp.MustCompile(pattern).FindStringSubmatch(html); len(m) > 1 {
			text := extractText(m[1])
			if len(strings.TrimSpace(text)) > 200 {
				return text
			}
		}
	}
	return ""
}

func extractFromBody(html string) string {
	if m := regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`).FindStringSubmatch(html); len(m) > 1 {
		return extractText(m[1])
	}
	return ""
}

func extractText(html string) string {
	for _, tag := range []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"} {
		html = regexp.MustCompile(`(?i)<`+tag+`[^>]*>`).ReplaceAllString(html, "\n")
		html = regexp.MustCompile(`(?i)</`+tag+`>`).ReplaceAllString(html, "\n")
	}
	return regexp.MustCompile(`<[^>]*>`).ReplaceAllString(html, "")
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&apos;", "'",
)

func cleanText(text string) string {
	text = entityReplacer.Replace(text)
	lines := strings.Split(text, "\n")
	whitespace := regexp.MustCompile(`[^\S\n]+`)
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
