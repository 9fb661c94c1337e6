package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus counters and histograms for the turn
// loop, tool dispatch, approvals, and the rollout log. Trimmed from the
// teacher's version, which also tracked chat-channel message flow,
// webhook ingestion, and HTTP/database metrics that went with the
// gateway this engine doesn't have.
type Metrics struct {
	// TurnCounter counts completed turns by terminal status.
	// Labels: status (task_complete|error|cancelled)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures wall-clock time for one turn.
	TurnDuration prometheus.Histogram

	// ModelRequestCounter counts model round-trips by status.
	// Labels: model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelRequestDuration measures model round-trip latency.
	// Labels: model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokensUsed tracks token consumption.
	// Labels: model, type (prompt|completion)
	ModelTokensUsed *prometheus.CounterVec

	// ToolCallCounter counts tool invocations by outcome.
	// Labels: tool, status (success|error)
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures tool execution latency.
	// Labels: tool
	ToolCallDuration *prometheus.HistogramVec

	// ApprovalLatency measures time from an approval request being
	// raised to a decision being recorded.
	ApprovalLatency prometheus.Histogram

	// ApprovalCounter counts approval decisions by outcome.
	// Labels: decision (allowed|denied)
	ApprovalCounter *prometheus.CounterVec

	// RolloutWriteLatency measures time to append one event to the
	// rollout log.
	RolloutWriteLatency prometheus.Histogram

	// CompactionCounter counts compaction runs by outcome.
	// Labels: status (success|error)
	CompactionCounter *prometheus.CounterVec

	// ActiveSessions tracks the number of sessions with an open driver.
	ActiveSessions prometheus.Gauge
}

// NewMetrics registers and returns a fresh Metrics on the default
// Prometheus registry.
func NewMetrics() *Metrics {
	durationBuckets := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

	return &Metrics{
		TurnCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_turns_total",
			Help: "Total number of turns by terminal status.",
		}, []string{"status"}),

		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_turn_duration_seconds",
			Help:    "Wall-clock duration of one turn.",
			Buckets: durationBuckets,
		}),

		ModelRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_model_requests_total",
			Help: "Total model round-trips by status.",
		}, []string{"model", "status"}),

		ModelRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_model_request_duration_seconds",
			Help:    "Model round-trip latency.",
			Buckets: durationBuckets,
		}, []string{"model"}),

		ModelTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_model_tokens_total",
			Help: "Tokens consumed by model and type.",
		}, []string{"model", "type"}),

		ToolCallCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_tool_calls_total",
			Help: "Total tool invocations by tool and outcome.",
		}, []string{"tool", "status"}),

		ToolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cortex_tool_call_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: durationBuckets,
		}, []string{"tool"}),

		ApprovalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_approval_latency_seconds",
			Help:    "Time from an approval request being raised to a decision.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300},
		}),

		ApprovalCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_approval_decisions_total",
			Help: "Approval decisions by outcome.",
		}, []string{"decision"}),

		RolloutWriteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cortex_rollout_write_latency_seconds",
			Help:    "Latency of appending one event to the rollout log.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		CompactionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cortex_compactions_total",
			Help: "Compaction runs by outcome.",
		}, []string{"status"}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cortex_active_sessions",
			Help: "Number of sessions with an open driver.",
		}),
	}
}

// RecordTurn records one completed turn's status and duration.
func (m *Metrics) RecordTurn(status string, durationSeconds float64) {
	m.TurnCounter.WithLabelValues(status).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordModelRequest records one model round-trip.
func (m *Metrics) RecordModelRequest(model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.ModelRequestCounter.WithLabelValues(model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool, status string, durationSeconds float64) {
	m.ToolCallCounter.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordApproval records one approval decision and how long it took to
// arrive.
func (m *Metrics) RecordApproval(decision string, latencySeconds float64) {
	m.ApprovalCounter.WithLabelValues(decision).Inc()
	m.ApprovalLatency.Observe(latencySeconds)
}

// RecordRolloutWrite records the latency of one rollout append.
func (m *Metrics) RecordRolloutWrite(durationSeconds float64) {
	m.RolloutWriteLatency.Observe(durationSeconds)
}

// RecordCompaction records one compaction run's outcome.
func (m *Metrics) RecordCompaction(status string) {
	m.CompactionCounter.WithLabelValues(status).Inc()
}

// SessionStarted/SessionEnded track the active-session gauge.
func (m *Metrics) SessionStarted() { m.ActiveSessions.Inc() }
func (m *Metrics) SessionEnded()   { m.ActiveSessions.Dec() }
