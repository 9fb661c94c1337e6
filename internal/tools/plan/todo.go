package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/pkg/types"
)

// WriteTool replaces the session's task list wholesale. The model is
// expected to resend the full list on every call, not a delta.
type WriteTool struct {
	store *Store
}

func NewWriteTool(store *Store) *WriteTool { return &WriteTool{store: store} }

func (t *WriteTool) Name() string        { return "todo_write" }
func (t *WriteTool) Description() string { return "Replace the current task list." }
func (t *WriteTool) Category() tools.Category { return tools.CategoryPlanning }
func (t *WriteTool) Flags() tools.Flags  { return tools.Flags{DefaultApproval: tools.ApprovalAuto} }

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
					},
					"required": ["content", "status"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Todos []Todo `json:"todos"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	inProgress := 0
	for _, td := range input.Todos {
		if td.Status == TodoInProgress {
			inProgress++
		}
	}
	if inProgress > 1 {
		return tools.ErrorResult("", "at most one todo may be in_progress at a time"), nil
	}

	t.store.setTodos(input.Todos)

	var b strings.Builder
	for _, td := range input.Todos {
		fmt.Fprintf(&b, "[%s] %s\n", td.Status, td.Content)
	}
	return &types.ToolResult{
		Output:   b.String(),
		Metadata: map[string]any{"count": len(input.Todos)},
	}, nil
}

// ReadTool returns the session's current task list.
type ReadTool struct {
	store *Store
}

func NewReadTool(store *Store) *ReadTool { return &ReadTool{store: store} }

func (t *ReadTool) Name() string        { return "todo_read" }
func (t *ReadTool) Description() string { return "Read the current task list." }
func (t *ReadTool) Category() tools.Category { return tools.CategoryPlanning }
func (t *ReadTool) Flags() tools.Flags  { return tools.Flags{DefaultApproval: tools.ApprovalAuto} }

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ReadTool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	todos := t.store.getTodos()
	payload, err := json.Marshal(todos)
	if err != nil {
		return tools.ErrorResult("", fmt.Sprintf("encode todos: %v", err)), nil
	}
	return &types.ToolResult{
		Output:   string(payload),
		Metadata: map[string]any{"count": len(todos)},
	}, nil
}
