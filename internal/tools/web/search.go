package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cortexlabs/cortex/internal/ratelimit"
	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/pkg/types"
)

// Backend names a pluggable web search provider.
type Backend string

const (
	BackendSearXNG    Backend = "searxng"
	BackendDuckDuckGo Backend = "duckduckgo"
	BackendBrave      Backend = "brave"
)

// SearchConfig configures the WebSearch tool's backend and caching.
type SearchConfig struct {
	SearXNGURL         string
	BraveAPIKey        string
	DefaultBackend     Backend
	DefaultResultCount int
	CacheTTL           time.Duration
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Query       string         `json:"query"`
	Results     []searchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Backend     Backend        `json:"backend"`
}

type cacheEntry struct {
	response  *searchResponse
	expiresAt time.Time
}

// maxCacheEntries bounds the search cache so a long session doesn't grow
// it unboundedly.
const maxCacheEntries = 1000

// SearchTool implements the WebSearch catalog entry, querying a
// configured backend (falling back to DuckDuckGo on failure) with a
// small TTL cache in front.
type SearchTool struct {
	cfg        SearchConfig
	httpClient *http.Client
	limiter    *ratelimit.Limiter

	cacheMu sync.Mutex
	cache   map[string]*cacheEntry
}

// NewSearchTool creates a WebSearch tool with defaults applied. A nil
// limiter disables rate limiting.
func NewSearchTool(cfg SearchConfig, limiter *ratelimit.Limiter) *SearchTool {
	if cfg.DefaultResultCount <= 0 {
		cfg.DefaultResultCount = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.DefaultBackend == "" {
		if cfg.SearXNGURL != "" {
			cfg.DefaultBackend = BackendSearXNG
		} else {
			cfg.DefaultBackend = BackendDuckDuckGo
		}
	}
	return &SearchTool{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		cache:      make(map[string]*cacheEntry),
	}
}

func (t *SearchTool) Name() string          { return "web_search" }
func (t *SearchTool) Description() string   { return "Search the web for information." }
func (t *SearchTool) Category() tools.Category { return tools.CategoryWeb }
func (t *SearchTool) Flags() tools.Flags {
	return tools.Flags{RequiresNetwork: true, DefaultApproval: tools.ApprovalRequired}
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"result_count": {"type": "integer", "minimum": 1, "maximum": 20}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Query       string `json:"query"`
		ResultCount int    `json:"result_count"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Query == "" {
		return tools.ErrorResult("", "query is required"), nil
	}
	if t.limiter != nil && !t.limiter.Allow(t.Name()) {
		return tools.ErrorResult("", fmt.Sprintf("rate limited, retry after %s", t.limiter.WaitTime(t.Name()))), nil
	}
	count := input.ResultCount
	if count <= 0 {
		count = t.cfg.DefaultResultCount
	} else if count > 20 {
		count = 20
	}

	cacheKey := fmt.Sprintf("%s:%d", input.Query, count)
	if cached := t.fromCache(cacheKey); cached != nil {
		return t.format(cached), nil
	}

	response, err := t.search(ctx, t.cfg.DefaultBackend, input.Query, count)
	if err != nil && t.cfg.DefaultBackend != BackendDuckDuckGo {
		response, err = t.search(ctx, BackendDuckDuckGo, input.Query, count)
	}
	if err != nil {
		return tools.ErrorResult("", fmt.Sprintf("search failed: %v", err)), nil
	}

	t.toCache(cacheKey, response)
	return t.format(response), nil
}

func (t *SearchTool) search(ctx context.Context, backend Backend, query string, count int) (*searchResponse, error) {
	switch backend {
	case BackendSearXNG:
		return t.searchSearXNG(ctx, query, count)
	case BackendBrave:
		return t.searchBrave(ctx, query, count)
	default:
		return t.searchDuckDuckGo(ctx, query, count)
	}
}

func (t *SearchTool) format(r *searchResponse) *types.ToolResult {
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return tools.ErrorResult("", fmt.Sprintf("encode result: %v", err))
	}
	return &types.ToolResult{Output: string(payload), Metadata: map[string]any{"backend": string(r.Backend), "result_count": r.ResultCount}}
}

func (t *SearchTool) fromCache(key string) *searchResponse {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *SearchTool) toCache(key string, r *searchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheEntries {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey, oldestTime = k, v.expiresAt
			}
		}
		if oldestKey == "" {
			break
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = &cacheEntry{response: r, expiresAt: now.Add(t.cfg.CacheTTL)}
}

func (t *SearchTool) searchSearXNG(ctx context.Context, query string, count int) (*searchResponse, error) {
	if t.cfg.SearXNGURL == "" {
		return nil, fmt.Errorf("SearXNG URL not configured")
	}
	searchURL, err := url.Parse(t.cfg.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	searchURL.Path = "/search"
	searchURL.RawQuery = q.Encode()

	body, err := t.doGET(ctx, searchURL.String(), nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse SearXNG response: %w", err)
	}
	results := make([]searchResult, 0, count)
	for i := 0; i < len(parsed.Results) && i < count; i++ {
		r := parsed.Results[i]
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return &searchResponse{Query: query, Results: results, ResultCount: len(results), Backend: BackendSearXNG}, nil
}

func (t *SearchTool) searchDuckDuckGo(ctx context.Context, query string, count int) (*searchResponse, error) {
	instantURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))
	body, err := t.doGET(ctx, instantURL, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse DuckDuckGo response: %w", err)
	}

	var results []searchResult
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, searchResult{Title: parsed.Heading, URL: parsed.AbstractURL, Snippet: parsed.AbstractText})
	}
	for i := 0; i < len(parsed.RelatedTopics) && len(results) < count; i++ {
		topic := parsed.RelatedTopics[i]
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, searchResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	return &searchResponse{Query: query, Results: results, ResultCount: len(results), Backend: BackendDuckDuckGo}, nil
}

func (t *SearchTool) searchBrave(ctx context.Context, query string, count int) (*searchResponse, error) {
	if t.cfg.BraveAPIKey == "" {
		return nil, fmt.Errorf("Brave API key not configured")
	}
	searchURL, _ := url.Parse("https://api.search.brave.com/res/v1/web/search")
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	searchURL.RawQuery = q.Encode()

	body, err := t.doGET(ctx, searchURL.String(), map[string]string{
		"Accept":                "application/json",
		"X-Subscription-Token":  t.cfg.BraveAPIKey,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse Brave response: %w", err)
	}
	results := make([]searchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return &searchResponse{Query: query, Results: results, ResultCount: len(results), Backend: BackendBrave}, nil
}

func (t *SearchTool) doGET(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CortexBot/1.0)")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
