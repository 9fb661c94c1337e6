// Package compaction implements turnloop.Compactor: it replaces the
// oldest share of a session's history with a model-generated summary
// when the model reports the context window is exceeded.
//
// The chunk-sizing and multi-stage summarization algorithms are
// adapted from the teacher's internal/compaction package (itself
// grounded on clawdbot's agents/compaction.ts); they're generalized
// here from the teacher's own Message type onto pkg/types.Message so
// compaction plugs directly into the turn loop.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexlabs/cortex/internal/turnloop"
	"github.com/cortexlabs/cortex/pkg/types"
)

const (
	// baseChunkRatio is the default share of the context window given to
	// one summarization chunk.
	baseChunkRatio = 0.4

	// oversizedThreshold marks a single message too large to summarize
	// as a fraction of the context window.
	oversizedThreshold = 0.5

	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// defaultParts is the number of parts used for multi-stage
	// summarization of long histories.
	defaultParts = 2

	// minMessagesForSplit is the minimum history length before it's
	// worth splitting into parts rather than summarizing directly.
	minMessagesForSplit = 4

	summaryFallback = "No prior history."
)

// EstimateTokens approximates the token count of one message.
func EstimateTokens(msg types.Message) int {
	chars := len(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += len(tc.Input)
	}
	return (chars + charsPerToken - 1) / charsPerToken
}

func estimateTotal(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg)
	}
	return total
}

// Config controls one Compactor's behavior.
type Config struct {
	// Model identifies which context window to compact against; falls
	// back to ResolveContextWindowTokens's default table entry.
	Model string

	// ReserveTokens is held back for the model's reply after
	// compaction.
	ReserveTokens int

	// MaxChunkTokens caps a single summarization request; zero derives
	// it from the model's context window.
	MaxChunkTokens int

	// Parts is the number of parallel summarization parts used for
	// very long histories.
	Parts int

	// MinMessagesForSplit is the minimum history length before
	// splitting into Parts rather than summarizing directly.
	MinMessagesForSplit int

	// KeepRecent is the number of most recent messages left untouched
	// by compaction, so the model doesn't lose immediate context.
	KeepRecent int

	// CustomInstructions are appended to the summarization prompt.
	CustomInstructions string
}

// DefaultConfig returns sensible defaults for Config.
func DefaultConfig() Config {
	return Config{
		ReserveTokens:       2000,
		Parts:               defaultParts,
		MinMessagesForSplit: minMessagesForSplit,
		KeepRecent:          4,
	}
}

// Compactor implements turnloop.Compactor by summarizing the oldest
// share of history through a model provider, keeping the most recent
// messages verbatim.
type Compactor struct {
	provider turnloop.ModelProvider
	cfg      Config
}

var _ turnloop.Compactor = (*Compactor)(nil)

// New builds a Compactor that drives summarization calls through
// provider.
func New(provider turnloop.ModelProvider, cfg Config) *Compactor {
	if cfg.Parts <= 0 {
		cfg.Parts = defaultParts
	}
	if cfg.MinMessagesForSplit <= 0 {
		cfg.MinMessagesForSplit = minMessagesForSplit
	}
	return &Compactor{provider: provider, cfg: cfg}
}

// Compact summarizes history[:len(history)-KeepRecent] into a single
// system message, leaving the most recent KeepRecent messages intact.
// It returns the summary message and how many original messages it
// replaced.
func (c *Compactor) Compact(ctx context.Context, history []types.Message) (types.Message, int, error) {
	keepRecent := c.cfg.KeepRecent
	if keepRecent < 0 || keepRecent > len(history) {
		keepRecent = len(history)
	}
	splitAt := len(history) - keepRecent
	if splitAt <= 0 {
		return types.Message{}, 0, fmt.Errorf("compaction: nothing old enough to summarize")
	}

	older := history[:splitAt]
	contextWindow := ResolveContextWindowTokens(c.cfg.Model)
	maxChunkTokens := c.cfg.MaxChunkTokens
	if maxChunkTokens <= 0 {
		maxChunkTokens = int(float64(contextWindow) * baseChunkRatio)
	}

	summary, err := c.summarizeWithFallback(ctx, older, contextWindow, maxChunkTokens)
	if err != nil {
		return types.Message{}, 0, err
	}

	return types.Message{
		Role:    types.RoleSystem,
		Content: "Summary of earlier conversation:\n\n" + summary,
	}, splitAt, nil
}

// summarizeWithFallback summarizes messages in chunks, carving out
// oversized individual messages as notes rather than failing on them.
func (c *Compactor) summarizeWithFallback(ctx context.Context, messages []types.Message, contextWindow, maxChunkTokens int) (string, error) {
	if len(messages) == 0 {
		return summaryFallback, nil
	}

	var normal []types.Message
	var oversizedNotes []string
	threshold := float64(contextWindow) * oversizedThreshold
	for _, msg := range messages {
		if float64(EstimateTokens(msg)) > threshold {
			oversizedNotes = append(oversizedNotes, fmt.Sprintf(
				"[oversized %s message with ~%d tokens omitted]", msg.Role, EstimateTokens(msg)))
			continue
		}
		normal = append(normal, msg)
	}

	summary := summaryFallback
	if len(normal) > 0 {
		var err error
		if len(normal) >= c.cfg.MinMessagesForSplit {
			summary, err = c.summarizeInStages(ctx, normal, maxChunkTokens)
		} else {
			summary, err = c.summarizeChunks(ctx, normal, maxChunkTokens)
		}
		if err != nil {
			return "", err
		}
	}
	if len(oversizedNotes) > 0 {
		summary = summary + "\n\n" + strings.Join(oversizedNotes, "\n")
	}
	return summary, nil
}

// summarizeInStages splits messages into roughly equal token shares and
// summarizes each share before merging, which keeps any one model call
// bounded regardless of total history length.
func (c *Compactor) summarizeInStages(ctx context.Context, messages []types.Message, maxChunkTokens int) (string, error) {
	parts := splitByTokenShare(messages, c.cfg.Parts)
	if len(parts) <= 1 {
		return c.summarizeChunks(ctx, messages, maxChunkTokens)
	}

	partSummaries := make([]string, 0, len(parts))
	for i, part := range parts {
		summary, err := c.summarizeChunks(ctx, part, maxChunkTokens)
		if err != nil {
			return "", fmt.Errorf("compaction: summarizing part %d: %w", i, err)
		}
		partSummaries = append(partSummaries, summary)
	}
	return c.mergeSummaries(ctx, partSummaries)
}

// summarizeChunks chunks messages to maxChunkTokens and merges the
// per-chunk summaries into one.
func (c *Compactor) summarizeChunks(ctx context.Context, messages []types.Message, maxChunkTokens int) (string, error) {
	chunks := chunkByMaxTokens(messages, maxChunkTokens)
	if len(chunks) == 0 {
		return summaryFallback, nil
	}
	if len(chunks) == 1 {
		return c.generateSummary(ctx, chunks[0], "")
	}

	chunkSummaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := c.generateSummary(ctx, chunk, "")
		if err != nil {
			return "", fmt.Errorf("compaction: summarizing chunk %d: %w", i, err)
		}
		chunkSummaries = append(chunkSummaries, summary)
	}
	return c.mergeSummaries(ctx, chunkSummaries)
}

func (c *Compactor) mergeSummaries(ctx context.Context, summaries []string) (string, error) {
	if len(summaries) == 0 {
		return summaryFallback, nil
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	mergeMessages := make([]types.Message, len(summaries))
	for i, s := range summaries {
		mergeMessages[i] = types.Message{
			Role:    types.RoleSystem,
			Content: fmt.Sprintf("Chunk %d summary:\n%s", i+1, s),
		}
	}
	instructions := "Merge these chunk summaries into a single coherent summary, preserving chronological order and key details."
	return c.generateSummary(ctx, mergeMessages, instructions)
}

// generateSummary drives one model call to summarize messages,
// collecting the streamed completion into a single string.
func (c *Compactor) generateSummary(ctx context.Context, messages []types.Message, extraInstructions string) (string, error) {
	system := "Summarize the conversation below for an AI coding assistant resuming work. " +
		"Preserve file paths, decisions, open questions, and anything the user explicitly asked for. " +
		"Be terse; this summary replaces the original messages in the model's context."
	if c.cfg.CustomInstructions != "" {
		system += " " + c.cfg.CustomInstructions
	}
	if extraInstructions != "" {
		system += " " + extraInstructions
	}

	req := &turnloop.CompletionRequest{
		Model:     c.cfg.Model,
		System:    system,
		Messages:  messages,
		MaxTokens: c.cfg.ReserveTokens,
	}
	chunks, err := c.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("compaction: model call: %w", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", fmt.Errorf("compaction: model call: %w", chunk.Err)
		}
		sb.WriteString(chunk.Text)
		if chunk.Done {
			break
		}
	}
	if sb.Len() == 0 {
		return summaryFallback, nil
	}
	return sb.String(), nil
}

// splitByTokenShare splits messages into parts with roughly equal
// token counts, preserving order.
func splitByTokenShare(messages []types.Message, parts int) [][]types.Message {
	if len(messages) == 0 {
		return nil
	}
	if parts <= 0 {
		parts = defaultParts
	}
	if parts == 1 || len(messages) < parts {
		return [][]types.Message{messages}
	}

	targetPerPart := estimateTotal(messages) / parts
	result := make([][]types.Message, 0, parts)
	current := make([]types.Message, 0)
	currentTokens := 0

	for i, msg := range messages {
		current = append(current, msg)
		currentTokens += EstimateTokens(msg)

		remainingParts := parts - len(result) - 1
		isLast := i == len(messages)-1
		if !isLast && remainingParts > 0 && currentTokens >= targetPerPart {
			result = append(result, current)
			current = make([]types.Message, 0)
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// chunkByMaxTokens splits messages into chunks that each stay under
// maxTokens, giving any single oversized message its own chunk.
func chunkByMaxTokens(messages []types.Message, maxTokens int) [][]types.Message {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		return [][]types.Message{messages}
	}

	result := make([][]types.Message, 0)
	current := make([]types.Message, 0)
	currentTokens := 0

	for _, msg := range messages {
		msgTokens := EstimateTokens(msg)
		if msgTokens > maxTokens {
			if len(current) > 0 {
				result = append(result, current)
				current = make([]types.Message, 0)
				currentTokens = 0
			}
			result = append(result, []types.Message{msg})
			continue
		}
		if currentTokens+msgTokens > maxTokens && len(current) > 0 {
			result = append(result, current)
			current = make([]types.Message, 0)
			currentTokens = 0
		}
		current = append(current, msg)
		currentTokens += msgTokens
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}
