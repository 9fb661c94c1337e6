package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers on the default Prometheus registerer, so every
// test in this file shares one instance to avoid "duplicate metrics
// collector registration" panics.
var sharedMetrics = NewMetrics()

func TestRecordTurnIncrementsCounterAndHistogram(t *testing.T) {
	sharedMetrics.RecordTurn("task_complete", 1.5)

	if got := testutil.ToFloat64(sharedMetrics.TurnCounter.WithLabelValues("task_complete")); got != 1 {
		t.Errorf("turn counter = %v, want 1", got)
	}
}

func TestRecordModelRequestTracksTokensOnlyWhenNonzero(t *testing.T) {
	sharedMetrics.RecordModelRequest("claude-sonnet-4", "success", 0.8, 100, 50)

	if got := testutil.ToFloat64(sharedMetrics.ModelRequestCounter.WithLabelValues("claude-sonnet-4", "success")); got != 1 {
		t.Errorf("model request counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sharedMetrics.ModelTokensUsed.WithLabelValues("claude-sonnet-4", "prompt")); got != 100 {
		t.Errorf("prompt tokens = %v, want 100", got)
	}
	if got := testutil.ToFloat64(sharedMetrics.ModelTokensUsed.WithLabelValues("claude-sonnet-4", "completion")); got != 50 {
		t.Errorf("completion tokens = %v, want 50", got)
	}

	// Zero-token requests (e.g. an error before any usage is reported)
	// must not create a zero-valued series.
	sharedMetrics.RecordModelRequest("claude-sonnet-4", "error", 0.1, 0, 0)
	if got := testutil.ToFloat64(sharedMetrics.ModelRequestCounter.WithLabelValues("claude-sonnet-4", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestRecordToolCallIncrementsByToolAndOutcome(t *testing.T) {
	sharedMetrics.RecordToolCall("execute", "success", 0.2)
	sharedMetrics.RecordToolCall("execute", "error", 0.3)

	if got := testutil.ToFloat64(sharedMetrics.ToolCallCounter.WithLabelValues("execute", "success")); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sharedMetrics.ToolCallCounter.WithLabelValues("execute", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestRecordApprovalIncrementsByDecision(t *testing.T) {
	sharedMetrics.RecordApproval("allowed", 2.0)
	sharedMetrics.RecordApproval("denied", 1.0)

	if got := testutil.ToFloat64(sharedMetrics.ApprovalCounter.WithLabelValues("allowed")); got != 1 {
		t.Errorf("allowed counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sharedMetrics.ApprovalCounter.WithLabelValues("denied")); got != 1 {
		t.Errorf("denied counter = %v, want 1", got)
	}
}

func TestRecordCompactionIncrementsByStatus(t *testing.T) {
	sharedMetrics.RecordCompaction("success")

	if got := testutil.ToFloat64(sharedMetrics.CompactionCounter.WithLabelValues("success")); got != 1 {
		t.Errorf("compaction counter = %v, want 1", got)
	}
}

func TestSessionStartedAndEndedMoveTheGauge(t *testing.T) {
	sharedMetrics.SessionStarted()
	sharedMetrics.SessionStarted()
	sharedMetrics.SessionEnded()

	if got := testutil.ToFloat64(sharedMetrics.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}
