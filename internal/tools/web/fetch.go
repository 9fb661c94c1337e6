package web

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexlabs/cortex/internal/ratelimit"
	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/pkg/types"
)

// FetchTool implements the FetchUrl catalog entry: a lightweight fetch
// and readability extraction, without full browser automation.
type FetchTool struct {
	maxChars  int
	extractor *Extractor
	limiter   *ratelimit.Limiter
}

// NewFetchTool creates a FetchUrl tool. maxChars <= 0 uses 10000. A nil
// limiter disables rate limiting.
func NewFetchTool(maxChars int, limiter *ratelimit.Limiter) *FetchTool {
	if maxChars <= 0 {
		maxChars = 10000
	}
	return &FetchTool{maxChars: maxChars, extractor: NewExtractor(), limiter: limiter}
}

func (t *FetchTool) Name() string          { return "fetch_url" }
func (t *FetchTool) Description() string   { return "Fetch and extract readable content from a URL (http/https only)." }
func (t *FetchTool) Category() tools.Category { return tools.CategoryWeb }
func (t *FetchTool) Flags() tools.Flags {
	return tools.Flags{RequiresNetwork: true, DefaultApproval: tools.ApprovalRequired}
}

func (t *FetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL to fetch."},
			"max_chars": {"type": "integer", "minimum": 0, "description": "Maximum characters to return (default: 10000)."}
		},
		"required": ["url"]
	}`)
}

func (t *FetchTool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		MaxChars int    `json:"max_chars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.URL) == "" {
		return tools.ErrorResult("", "url is required"), nil
	}
	if t.limiter != nil && !t.limiter.Allow(t.Name()) {
		return tools.ErrorResult("", fmt.Sprintf("rate limited, retry after %s", t.limiter.WaitTime(t.Name()))), nil
	}

	limit := t.maxChars
	if input.MaxChars > 0 && input.MaxChars < limit {
		limit = input.MaxChars
	}

	content, err := t.extractor.Extract(ctx, input.URL)
	if err != nil {
		return tools.ErrorResult("", fmt.Sprintf("fetch failed: %v", err)), nil
	}

	truncated := false
	if limit > 0 && len(content) > limit {
		content = content[:limit] + "..."
		truncated = true
	}

	return &types.ToolResult{
		Output: content,
		Metadata: map[string]any{
			"url":       input.URL,
			"truncated": truncated,
		},
	}, nil
}
