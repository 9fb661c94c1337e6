package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cortexlabs/cortex/pkg/types"
)

type stubTool struct {
	name   string
	schema string
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Category() Category  { return CategoryFilesystem }
func (s *stubTool) Flags() Flags        { return Flags{DefaultApproval: ApprovalAuto} }
func (s *stubTool) Schema() json.RawMessage {
	return json.RawMessage(s.schema)
}
func (s *stubTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	s.calls++
	return &types.ToolResult{Output: "ok"}, nil
}

func TestRegistryExecuteValidatesSchema(t *testing.T) {
	registry := NewRegistry()
	tool := &stubTool{name: "stub", schema: `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`}
	registry.Register(tool)

	result, err := registry.Execute(context.Background(), ToolContext{}, "call-1", "stub", json.RawMessage(`{"x":"not an int"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected schema validation error, got success")
	}
	if tool.calls != 0 {
		t.Errorf("tool should not have been invoked on invalid params, calls=%d", tool.calls)
	}
}

func TestRegistryExecuteDispatchesOnValidParams(t *testing.T) {
	registry := NewRegistry()
	tool := &stubTool{name: "stub", schema: `{"type":"object","properties":{"x":{"type":"integer"}},"required":["x"]}`}
	registry.Register(tool)

	result, err := registry.Execute(context.Background(), ToolContext{}, "call-1", "stub", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Output)
	}
	if result.CallID != "call-1" {
		t.Errorf("CallID = %q, want call-1", result.CallID)
	}
	if tool.calls != 1 {
		t.Errorf("calls = %d, want 1", tool.calls)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry()
	result, err := registry.Execute(context.Background(), ToolContext{}, "call-1", "nope", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected not-found error")
	}
}

func TestRegistryExecuteRejectsOversizedParams(t *testing.T) {
	registry := NewRegistry()
	tool := &stubTool{name: "stub", schema: `{"type":"object"}`}
	registry.Register(tool)

	oversized := make(json.RawMessage, MaxParamsSize+1)
	result, err := registry.Execute(context.Background(), ToolContext{}, "call-1", "stub", oversized)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected oversized-params error")
	}
}
