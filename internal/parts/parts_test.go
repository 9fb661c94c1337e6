package parts

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cortexlabs/cortex/pkg/types"
)

type recordingSink struct {
	mu      sync.Mutex
	updated []PartUpdatedEvent
	deltas  []PartDeltaEvent
	removed []PartRemovedEvent
}

func (s *recordingSink) OnPartUpdated(e PartUpdatedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, e)
}

func (s *recordingSink) OnPartDelta(e PartDeltaEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, e)
}

func (s *recordingSink) OnPartRemoved(e PartRemovedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, e)
}

func TestAddTextAppendsDensePartIndices(t *testing.T) {
	sink := &recordingSink{}
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", sink)

	if _, err := b.AddText("hello"); err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if _, err := b.AddReasoning("thinking"); err != nil {
		t.Fatalf("AddReasoning: %v", err)
	}

	msg := b.Message()
	if len(msg.Parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(msg.Parts))
	}
	if msg.Parts[0].Index != 0 || msg.Parts[1].Index != 1 {
		t.Errorf("indices = %d, %d, want 0, 1", msg.Parts[0].Index, msg.Parts[1].Index)
	}
	if len(sink.updated) != 2 {
		t.Errorf("updated events = %d, want 2", len(sink.updated))
	}
}

func TestDeltaTextAccumulatesIntoSamePart(t *testing.T) {
	sink := &recordingSink{}
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", sink)

	if err := b.DeltaText("Hel"); err != nil {
		t.Fatalf("DeltaText: %v", err)
	}
	if err := b.DeltaText("lo"); err != nil {
		t.Fatalf("DeltaText: %v", err)
	}

	msg := b.Message()
	if len(msg.Parts) != 1 {
		t.Fatalf("parts = %d, want 1 (deltas should accumulate into the same part)", len(msg.Parts))
	}
	if msg.Parts[0].Part.Text != "Hello" {
		t.Errorf("text = %q, want %q", msg.Parts[0].Part.Text, "Hello")
	}
	if len(sink.deltas) != 2 {
		t.Errorf("delta events = %d, want 2", len(sink.deltas))
	}
}

func TestToolCallLifecycleHappyPath(t *testing.T) {
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", nil)

	input, _ := json.Marshal(map[string]string{"path": "x"})
	if _, err := b.AddToolCall("call-1", "read", input); err != nil {
		t.Fatalf("AddToolCall: %v", err)
	}
	if err := b.UpdateToolRunning("call-1", "reading x"); err != nil {
		t.Fatalf("UpdateToolRunning: %v", err)
	}
	if err := b.DeltaToolOutput("call-1", "partial output"); err != nil {
		t.Fatalf("DeltaToolOutput: %v", err)
	}
	if err := b.CompleteTool("call-1", "full output", "read x", map[string]any{"lines": 3}); err != nil {
		t.Fatalf("CompleteTool: %v", err)
	}

	msg := b.Message()
	tc := msg.Parts[0].Part
	if tc.State != types.ToolCallCompleted {
		t.Errorf("state = %v, want Completed", tc.State)
	}
	if tc.Output != "full output" {
		t.Errorf("output = %q, want final output to replace delta accumulation", tc.Output)
	}
	if msg.Parts[0].EndedAt.IsZero() {
		t.Errorf("expected EndedAt to be set")
	}
}

func TestToolCallCannotReturnToRunningAfterCompleted(t *testing.T) {
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", nil)
	if _, err := b.AddToolCall("call-1", "read", nil); err != nil {
		t.Fatalf("AddToolCall: %v", err)
	}
	if err := b.CompleteTool("call-1", "done", "", nil); err != nil {
		t.Fatalf("CompleteTool: %v", err)
	}
	if err := b.UpdateToolRunning("call-1", ""); err == nil {
		t.Fatalf("expected rejection of Completed -> Running transition")
	}
}

func TestErrorToolAfterRunning(t *testing.T) {
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", nil)
	if _, err := b.AddToolCall("call-1", "execute", nil); err != nil {
		t.Fatalf("AddToolCall: %v", err)
	}
	if err := b.UpdateToolRunning("call-1", ""); err != nil {
		t.Fatalf("UpdateToolRunning: %v", err)
	}
	if err := b.ErrorTool("call-1", errors.New("boom")); err != nil {
		t.Fatalf("ErrorTool: %v", err)
	}

	msg := b.Message()
	if msg.Parts[0].Part.State != types.ToolCallError {
		t.Errorf("state = %v, want Error", msg.Parts[0].Part.State)
	}
	if !msg.Parts[0].Part.IsError {
		t.Errorf("expected IsError true")
	}
	if msg.Parts[0].Part.Output != "boom" {
		t.Errorf("output = %q, want %q", msg.Parts[0].Part.Output, "boom")
	}
}

func TestUnknownToolCallOperationsError(t *testing.T) {
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", nil)
	if err := b.UpdateToolRunning("nope", ""); err == nil {
		t.Fatalf("expected error for unknown call id")
	}
	if err := b.CompleteTool("nope", "", "", nil); err == nil {
		t.Fatalf("expected error for unknown call id")
	}
}

func TestRemovePartReassignsIndicesDensely(t *testing.T) {
	sink := &recordingSink{}
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", sink)

	id0, _ := b.AddText("a")
	id1, _ := b.AddText("b")
	id2, _ := b.AddText("c")
	_ = id0

	if err := b.RemovePart(id1); err != nil {
		t.Fatalf("RemovePart: %v", err)
	}

	msg := b.Message()
	if len(msg.Parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(msg.Parts))
	}
	if msg.Parts[0].Part.Text != "a" || msg.Parts[0].Index != 0 {
		t.Errorf("part 0 = %+v, want text=a index=0", msg.Parts[0])
	}
	if msg.Parts[1].Part.Text != "c" || msg.Parts[1].Index != 1 {
		t.Errorf("part 1 = %+v, want text=c index=1 (densely reassigned)", msg.Parts[1])
	}
	if msg.Parts[1].PartID != id2 {
		t.Errorf("part 1 id = %q, want %q to survive removal", msg.Parts[1].PartID, id2)
	}
	if len(sink.removed) != 1 {
		t.Errorf("removed events = %d, want 1", len(sink.removed))
	}
}

func TestCompleteRejectsFurtherMutation(t *testing.T) {
	b := Assistant("msg-1", "sess-1", "", "gpt", "test", nil)
	if _, err := b.AddText("a"); err != nil {
		t.Fatalf("AddText: %v", err)
	}
	b.Complete("stop", types.TokenUsage{Output: 42}, 0.01)

	if !b.IsCompleted() {
		t.Fatalf("expected IsCompleted true")
	}
	if _, err := b.AddText("b"); err == nil {
		t.Fatalf("expected rejection of part mutation after Complete")
	}

	msg := b.Message()
	if msg.CompletedAt.IsZero() {
		t.Errorf("expected CompletedAt set")
	}
	if msg.Tokens.Output != 42 {
		t.Errorf("tokens.output = %d, want 42", msg.Tokens.Output)
	}
}

func TestAddAuxiliaryPartKinds(t *testing.T) {
	b := User("msg-1", "sess-1", nil)
	if _, err := b.AddFile("/tmp/x.go"); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := b.AddSnapshot("snap-1"); err != nil {
		t.Fatalf("AddSnapshot: %v", err)
	}
	if _, err := b.AddPatch("--- a\n+++ b\n"); err != nil {
		t.Fatalf("AddPatch: %v", err)
	}
	if _, err := b.AddStepStart(); err != nil {
		t.Fatalf("AddStepStart: %v", err)
	}
	if _, err := b.AddCompaction(12, "summarized older turns"); err != nil {
		t.Fatalf("AddCompaction: %v", err)
	}
	if _, err := b.AddSubtask("reviewer"); err != nil {
		t.Fatalf("AddSubtask: %v", err)
	}
	if _, err := b.AddRetry(2, "rate limited"); err != nil {
		t.Fatalf("AddRetry: %v", err)
	}

	msg := b.Message()
	if len(msg.Parts) != 7 {
		t.Fatalf("parts = %d, want 7", len(msg.Parts))
	}
	kinds := map[types.PartKind]bool{}
	for _, p := range msg.Parts {
		kinds[p.Part.Kind] = true
	}
	for _, want := range []types.PartKind{
		types.PartFile, types.PartSnapshot, types.PartPatch, types.PartStepStart,
		types.PartCompaction, types.PartSubtask, types.PartRetry,
	} {
		if !kinds[want] {
			t.Errorf("missing part kind %v", want)
		}
	}
}
