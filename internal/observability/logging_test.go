package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLoggerDefaults(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{name: "json format", config: LogConfig{Level: "info", Format: "json"}},
		{name: "text format", config: LogConfig{Level: "debug", Format: "text"}},
		{name: "defaults", config: LogConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
			if logger.logger == nil {
				t.Error("Logger.logger is nil")
			}
		})
	}
}

func TestLoggerLevelsFilterBelowConfigured(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "error", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")

	if buf.Len() != 0 {
		t.Fatalf("expected no output below error level, got %q", buf.String())
	}

	logger.Error(ctx, "error message")
	if buf.Len() == 0 {
		t.Fatal("expected error-level log to be written")
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"invalid", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := LogLevelFromString(tt.in).String(); got != tt.want {
			t.Errorf("LogLevelFromString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoggerJSONFormatIsValid(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "test message", "key", "value", "number", 42)

	output := buf.String()
	if output == "" {
		t.Fatal("expected log output, got empty string")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(output), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

func TestLoggerAttachesCorrelationIDsFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.Background()
	ctx = AddSessionID(ctx, "sess-123")
	ctx = AddTurnID(ctx, "turn-1")
	ctx = AddToolCallID(ctx, "call-1")

	logger.Info(ctx, "turn started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}
	if entry["session_id"] != "sess-123" {
		t.Errorf("session_id = %v, want sess-123", entry["session_id"])
	}
	if entry["turn_id"] != "turn-1" {
		t.Errorf("turn_id = %v, want turn-1", entry["turn_id"])
	}
	if entry["tool_call_id"] != "call-1" {
		t.Errorf("tool_call_id = %v, want call-1", entry["tool_call_id"])
	}
}

func TestGetSessionIDAndGetTurnID(t *testing.T) {
	ctx := context.Background()
	ctx = AddSessionID(ctx, "sess-123")
	ctx = AddTurnID(ctx, "turn-1")

	if got := GetSessionID(ctx); got != "sess-123" {
		t.Errorf("GetSessionID = %q, want sess-123", got)
	}
	if got := GetTurnID(ctx); got != "turn-1" {
		t.Errorf("GetTurnID = %q, want turn-1", got)
	}

	empty := context.Background()
	if got := GetSessionID(empty); got != "" {
		t.Errorf("GetSessionID on empty context = %q, want empty", got)
	}
}

func TestLoggerRedactsKnownSecretPatterns(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "got response containing sk-ant-"+strings.Repeat("a", 100))

	if strings.Contains(buf.String(), "sk-ant-") {
		t.Errorf("expected Anthropic key to be redacted, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("expected redaction marker in output, got %q", buf.String())
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "tool output", "env", map[string]any{"API_KEY": "super-secret-value", "cwd": "/workspace"})

	output := buf.String()
	if strings.Contains(output, "super-secret-value") {
		t.Errorf("expected api_key value to be redacted, got %q", output)
	}
	if !strings.Contains(output, "/workspace") {
		t.Errorf("expected non-sensitive field to survive, got %q", output)
	}
}

func TestLoggerRedactsErrorValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	ctx := context.Background()
	err := errors.New("request failed: api_key=" + strings.Repeat("x", 20))
	logger.Error(ctx, "model request failed", "error", err)

	if strings.Contains(buf.String(), strings.Repeat("x", 20)) {
		t.Errorf("expected error value to be redacted, got %q", buf.String())
	}
}

func TestWithFieldsAttachesToEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})
	scoped := base.WithFields("session_id", "sess-1")

	scoped.Info(context.Background(), "message one")
	scoped.Info(context.Background(), "message two")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSON log line: %v", err)
		}
		if entry["session_id"] != "sess-1" {
			t.Errorf("session_id = %v, want sess-1", entry["session_id"])
		}
	}
}

func TestSlogReturnsUnderlyingLogger(t *testing.T) {
	logger := NewLogger(LogConfig{Level: "info", Format: "json"})
	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
}
