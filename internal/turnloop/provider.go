package turnloop

import (
	"context"
	"encoding/json"

	"github.com/cortexlabs/cortex/pkg/types"
)

// ModelProvider is the turn loop's view of an LLM backend: stream a
// completion for the given request. Generalizes the teacher's
// agent.LLMProvider interface (Complete/Name/Models/SupportsTools) down
// to the single method the loop actually drives; provider registration,
// model listing, and capability negotiation are an external collaborator's
// concern, not the session engine's.
type ModelProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
	Name() string
}

// CompletionRequest carries one model invocation's full context.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []types.Message
	ToolSpecs []ToolSpec
	MaxTokens int
}

// ToolSpec is one tool's model-facing definition: enough for a provider
// to build its own wire-format tool declaration without reaching back
// into the registry.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CompletionChunk is a single piece of a streaming completion, mirroring
// the teacher's CompletionChunk shape (text/thinking deltas, a terminal
// tool call, or the done/error signal).
type CompletionChunk struct {
	Text          string
	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool
	ToolCall      *types.ToolCall
	Done          bool
	FinishReason  string
	Err           error
	InputTokens   int
	OutputTokens  int
}
