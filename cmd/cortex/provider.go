package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cortexlabs/cortex/internal/errs"
	"github.com/cortexlabs/cortex/internal/ratelimit"
	"github.com/cortexlabs/cortex/internal/turnloop"
	"github.com/cortexlabs/cortex/pkg/types"
)

// defaultMessagesEndpoint is Anthropic's non-streaming Messages API. The
// session engine itself never links an Anthropic SDK (see DESIGN.md); this
// client speaks the wire format directly with net/http, since a provider
// implementation lives in the external-collaborator layer cmd/cortex
// stands in for, not in the engine.
const defaultMessagesEndpoint = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// httpModelProvider is a minimal, non-streaming turnloop.ModelProvider:
// it issues one blocking HTTP request per turn step and synthesizes the
// chunk sequence the driver expects from the single response.
type httpModelProvider struct {
	client   *http.Client
	endpoint string
	apiKey   string
	limiter  *ratelimit.Limiter
}

// newHTTPModelProvider reads its endpoint and API key from the
// environment, matching the teacher's convention of provider credentials
// living outside the config file. A nil limiter disables rate limiting.
func newHTTPModelProvider(limiter *ratelimit.Limiter) *httpModelProvider {
	endpoint := os.Getenv("CORTEX_MODEL_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultMessagesEndpoint
	}
	return &httpModelProvider{
		client:   &http.Client{Timeout: 2 * time.Minute},
		endpoint: endpoint,
		apiKey:   os.Getenv("ANTHROPIC_API_KEY"),
		limiter:  limiter,
	}
}

func (p *httpModelProvider) Name() string { return "anthropic-http" }

// wireMessage is one entry of the request body's "messages" array.
type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

// wireContent is a single content block, discriminated by Type. Only the
// fields relevant to Type are populated, matching the Messages API's own
// tagged-union content blocks.
type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
	Error      *wireError    `json:"error,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete issues one request and pushes its entire result as a short
// burst of chunks before closing the channel; there is no incremental
// streaming since this provider deliberately does not reimplement an SDK.
func (p *httpModelProvider) Complete(ctx context.Context, req *turnloop.CompletionRequest) (<-chan *turnloop.CompletionChunk, error) {
	if p.apiKey == "" {
		return nil, errs.New(errs.KindConfig, "ANTHROPIC_API_KEY is not set", nil)
	}
	if p.limiter != nil && !p.limiter.Allow(p.Name()) {
		return nil, errs.RateLimited("model call rate limited", p.limiter.WaitTime(p.Name()), nil)
	}

	body := wireRequest{
		Model:     req.Model,
		System:    req.System,
		Messages:  toWireMessages(req.Messages),
		Tools:     toWireTools(req.ToolSpecs),
		MaxTokens: req.MaxTokens,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 4096
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.New(errs.KindInternal, "encode model request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.New(errs.KindInternal, "build model request", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "model request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, "read model response", err)
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errs.New(errs.KindProvider, "decode model response", err)
	}
	if resp.StatusCode >= 400 || decoded.Error != nil {
		kind := errs.KindProvider
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = errs.KindRateLimit
		}
		msg := fmt.Sprintf("model request returned status %d", resp.StatusCode)
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return nil, errs.New(kind, msg, nil)
	}

	ch := make(chan *turnloop.CompletionChunk, len(decoded.Content)+1)
	for _, block := range decoded.Content {
		switch block.Type {
		case "text":
			ch <- &turnloop.CompletionChunk{Text: block.Text}
		case "tool_use":
			ch <- &turnloop.CompletionChunk{ToolCall: &types.ToolCall{ID: block.ID, Name: block.Name, Input: block.Input}}
		}
	}
	ch <- &turnloop.CompletionChunk{
		Done:         true,
		FinishReason: finishReasonFrom(decoded.StopReason),
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
	}
	close(ch)
	return ch, nil
}

// finishReasonFrom maps the Messages API's stop_reason vocabulary onto
// the engine's own, where "tool_use" is the one value the turn loop
// checks for by name to decide whether to keep looping.
func finishReasonFrom(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_use"
	case "end_turn":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return stopReason
	}
}

func toWireTools(specs []turnloop.ToolSpec) []wireTool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(specs))
	for _, s := range specs {
		out = append(out, wireTool{Name: s.Name, Description: s.Description, InputSchema: s.Schema})
	}
	return out
}

// toWireMessages flattens engine history into the Messages API's
// role+content-block shape: a plain-text message becomes one text
// block, an assistant's pending tool calls become tool_use blocks, and a
// tool result becomes a user-role tool_result block (the API has no
// separate "tool" role).
func toWireMessages(history []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleTool:
			out = append(out, wireMessage{
				Role: "user",
				Content: []wireContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case types.RoleAssistant:
			var blocks []wireContent
			if m.Content != "" {
				blocks = append(blocks, wireContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, wireContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Input})
			}
			out = append(out, wireMessage{Role: "assistant", Content: blocks})
		default: // user, system-as-user fallback
			out = append(out, wireMessage{
				Role:    "user",
				Content: []wireContent{{Type: "text", Text: m.Content}},
			})
		}
	}
	return out
}
