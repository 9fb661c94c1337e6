// Package observability provides metrics, structured logging, and
// distributed tracing for the session engine: the turn loop, tool
// dispatch, approvals, and the rollout log.
//
// # Metrics
//
// Metrics are Prometheus counters and histograms tracking turns, model
// round-trips and token usage, tool calls, approval decisions, rollout
// write latency, compaction runs, and active sessions.
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... run a turn ...
//	metrics.RecordTurn("task_complete", time.Since(start).Seconds())
//
// # Logging
//
// Logging wraps log/slog with request correlation (session/turn/tool-call
// IDs pulled from context) and redaction of secrets that might otherwise
// leak into a log line from tool output or a model response.
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	ctx = observability.AddSessionID(ctx, sessionID)
//	logger.Info(ctx, "turn started", "turn_id", turnID)
//
// # Tracing
//
// Tracing uses OpenTelemetry and covers exactly three span kinds: one
// turn, one tool call, one model round-trip.
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "cortex",
//	    Endpoint:    os.Getenv("OTEL_ENDPOINT"),
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceTurn(ctx, sessionID, turnID)
//	defer span.End()
//
// # Security
//
// The logging component redacts API keys (Anthropic, OpenAI, generic),
// passwords and secrets, JWTs, and bearer tokens from both log messages
// and structured fields whose key looks sensitive.
package observability
