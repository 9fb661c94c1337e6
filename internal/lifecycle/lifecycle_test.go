package lifecycle

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cortexlabs/cortex/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	home := t.TempDir()
	idx, err := OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return New(home, idx, slog.Default()), home
}

func TestNewSessionThenResumeRoundTrips(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.NewSession(ctx, "test-model", "/workspace", "be terse")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Recorder.RecordEvent(types.EventMsg{Type: types.EventUserMessage, ID: "msg-1", Message: "hello"}); err != nil {
		t.Fatalf("RecordEvent user: %v", err)
	}
	if err := sess.Recorder.RecordEvent(types.EventMsg{Type: types.EventAgentMessage, ID: "msg-2", Message: "hi there", FinishReason: "stop"}); err != nil {
		t.Fatalf("RecordEvent agent: %v", err)
	}
	if err := sess.Recorder.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}

	resumed, err := mgr.ResumeSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	defer resumed.Recorder.Close()

	if resumed.Meta.Model != "test-model" {
		t.Fatalf("resumed model = %q, want test-model", resumed.Meta.Model)
	}
	if len(resumed.History) != 2 {
		t.Fatalf("resumed history length = %d, want 2", len(resumed.History))
	}
	if resumed.History[0].Role != types.RoleUser || resumed.History[0].Content != "hello" {
		t.Fatalf("resumed history[0] = %+v", resumed.History[0])
	}
	if resumed.History[1].Role != types.RoleAssistant || resumed.History[1].Content != "hi there" {
		t.Fatalf("resumed history[1] = %+v", resumed.History[1])
	}
}

func TestForkSessionCopiesHistoryUpToForkPoint(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	parent, err := mgr.NewSession(ctx, "test-model", "/workspace", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	events := []types.EventMsg{
		{Type: types.EventUserMessage, ID: "msg-1", Message: "first"},
		{Type: types.EventAgentMessage, ID: "msg-2", Message: "first reply"},
		{Type: types.EventUserMessage, ID: "msg-3", Message: "second"},
		{Type: types.EventAgentMessage, ID: "msg-4", Message: "second reply"},
	}
	for _, ev := range events {
		if err := parent.Recorder.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	if err := parent.Recorder.Close(); err != nil {
		t.Fatalf("close parent recorder: %v", err)
	}

	fork, err := mgr.ForkSession(ctx, parent.ID, "msg-2")
	if err != nil {
		t.Fatalf("ForkSession: %v", err)
	}
	defer fork.Recorder.Close()

	if fork.Meta.ParentID != parent.ID {
		t.Fatalf("fork parent id = %q, want %q", fork.Meta.ParentID, parent.ID)
	}
	if fork.Meta.ForkPoint != "msg-2" {
		t.Fatalf("fork point = %q, want msg-2", fork.Meta.ForkPoint)
	}
	if len(fork.History) != 2 {
		t.Fatalf("fork history length = %d, want 2 (truncated at fork point)", len(fork.History))
	}
	if fork.History[1].Content != "first reply" {
		t.Fatalf("fork history[1] = %+v, want the first reply only", fork.History[1])
	}

	// The fork's own rollout file should now independently resume with
	// the same truncated history, proving it was re-recorded rather than
	// just held in memory.
	resumedFork, err := mgr.ResumeSession(ctx, fork.ID)
	if err != nil {
		t.Fatalf("ResumeSession(fork): %v", err)
	}
	defer resumedFork.Recorder.Close()
	if len(resumedFork.History) != 2 {
		t.Fatalf("resumed fork history length = %d, want 2", len(resumedFork.History))
	}
}

func TestForkSessionByMessageIndex(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	parent, err := mgr.NewSession(ctx, "test-model", "/workspace", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	events := []types.EventMsg{
		{Type: types.EventUserMessage, ID: "msg-1", Message: "first"},
		{Type: types.EventToolCallStart, ID: "tc-1", Tool: "grep"},
		{Type: types.EventAgentMessage, ID: "msg-2", Message: "first reply"},
		{Type: types.EventUserMessage, ID: "msg-3", Message: "second"},
		{Type: types.EventAgentMessage, ID: "msg-4", Message: "second reply"},
	}
	for _, ev := range events {
		if err := parent.Recorder.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	if err := parent.Recorder.Close(); err != nil {
		t.Fatalf("close parent recorder: %v", err)
	}

	// Index 0 means the first user+assistant message only: "first".
	fork, err := mgr.ForkSession(ctx, parent.ID, "0")
	if err != nil {
		t.Fatalf("ForkSession: %v", err)
	}
	defer fork.Recorder.Close()

	if len(fork.History) != 1 {
		t.Fatalf("fork history length = %d, want 1 (only the first user message)", len(fork.History))
	}
	if fork.History[0].Content != "first" {
		t.Fatalf("fork history[0] = %+v, want the first user message", fork.History[0])
	}
}

func TestListPrefersIndexAndReturnsNewestFirst(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.NewSession(ctx, "m1", "/a", "")
	if err != nil {
		t.Fatalf("NewSession first: %v", err)
	}
	first.Recorder.Close()

	second, err := mgr.NewSession(ctx, "m2", "/b", "")
	if err != nil {
		t.Fatalf("NewSession second: %v", err)
	}
	second.Recorder.Close()

	summaries, err := mgr.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries length = %d, want 2", len(summaries))
	}
	if summaries[0].ID != second.ID {
		t.Fatalf("summaries[0].ID = %q, want most recently created session %q", summaries[0].ID, second.ID)
	}
}
