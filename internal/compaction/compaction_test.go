package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/cortexlabs/cortex/internal/turnloop"
	"github.com/cortexlabs/cortex/pkg/types"
)

// stubProvider replays one summary string per call to Complete, mirroring
// turnloop's own stubProvider test idiom.
type stubProvider struct {
	summaries []string
	calls     int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req *turnloop.CompletionRequest) (<-chan *turnloop.CompletionChunk, error) {
	text := "summary"
	if s.calls < len(s.summaries) {
		text = s.summaries[s.calls]
	}
	s.calls++
	ch := make(chan *turnloop.CompletionChunk, 1)
	ch <- &turnloop.CompletionChunk{Text: text, Done: true}
	close(ch)
	return ch, nil
}

func TestEstimateTokensCountsContentAndToolCallInput(t *testing.T) {
	msg := types.Message{Content: "12345678"}
	if got := EstimateTokens(msg); got != 2 {
		t.Fatalf("EstimateTokens() = %d, want 2", got)
	}
	// 4 content chars + 7 input chars = 11 chars, rounded up to 3 tokens.
	withCall := types.Message{Content: "1234", ToolCalls: []types.ToolCall{{Input: []byte(`{"a":1}`)}}}
	if got := EstimateTokens(withCall); got != 3 {
		t.Fatalf("EstimateTokens() with tool call = %d, want 3", got)
	}
}

func TestResolveContextWindowTokensPrefersExactMatch(t *testing.T) {
	if got := ResolveContextWindowTokens("claude-3-5-sonnet"); got != 200000 {
		t.Fatalf("window = %d, want 200000", got)
	}
	if got := ResolveContextWindowTokens("unknown-model-xyz"); got != DefaultContextWindow {
		t.Fatalf("window = %d, want default %d", got, DefaultContextWindow)
	}
}

func TestCompactReplacesOlderHistoryWithSummary(t *testing.T) {
	history := make([]types.Message, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, types.Message{Role: types.RoleUser, Content: "message"})
	}

	provider := &stubProvider{summaries: []string{"part one", "part two", "condensed history"}}
	cfg := DefaultConfig()
	cfg.KeepRecent = 3
	c := New(provider, cfg)

	summary, dropped, err := c.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if dropped != 7 {
		t.Fatalf("dropped = %d, want 7", dropped)
	}
	if summary.Role != types.RoleSystem {
		t.Fatalf("summary role = %q, want system", summary.Role)
	}
	if !strings.Contains(summary.Content, "condensed history") {
		t.Fatalf("summary content = %q, want it to contain the model's summary", summary.Content)
	}
}

func TestCompactErrorsWhenEverythingIsKeptRecent(t *testing.T) {
	history := []types.Message{{Role: types.RoleUser, Content: "hi"}}
	cfg := DefaultConfig()
	cfg.KeepRecent = 5
	c := New(&stubProvider{}, cfg)

	if _, _, err := c.Compact(context.Background(), history); err == nil {
		t.Fatalf("expected an error when there's nothing old enough to summarize")
	}
}

func TestSummarizeInStagesSplitsLongHistoryAcrossParts(t *testing.T) {
	history := make([]types.Message, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, types.Message{Role: types.RoleUser, Content: strings.Repeat("x", 200)})
	}

	provider := &stubProvider{summaries: []string{"part one", "part two", "merged"}}
	cfg := DefaultConfig()
	cfg.KeepRecent = 0
	cfg.MaxChunkTokens = 100 // force multiple chunks per part
	c := New(provider, cfg)

	summary, dropped, err := c.Compact(context.Background(), history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if dropped != len(history) {
		t.Fatalf("dropped = %d, want %d", dropped, len(history))
	}
	if summary.Content == "" {
		t.Fatalf("expected a non-empty summary")
	}
}

func TestSplitByTokenShareKeepsOrderAndCoversAllMessages(t *testing.T) {
	messages := make([]types.Message, 0, 6)
	for i := 0; i < 6; i++ {
		messages = append(messages, types.Message{Content: "abcd"})
	}
	parts := splitByTokenShare(messages, 3)

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	if total != len(messages) {
		t.Fatalf("total messages across parts = %d, want %d", total, len(messages))
	}
}

func TestChunkByMaxTokensGivesOversizedMessageItsOwnChunk(t *testing.T) {
	messages := []types.Message{
		{Content: "small"},
		{Content: strings.Repeat("z", 400)},
		{Content: "small again"},
	}
	chunks := chunkByMaxTokens(messages, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized message to split into its own chunk, got %d chunks", len(chunks))
	}
}
