package plan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/pkg/types"
)

// Tool submits a plan for the user to approve before the model starts
// making changes. It always requires approval: approving the call is how
// the user signs off on the plan.
type Tool struct {
	store *Store
}

func NewTool(store *Store) *Tool { return &Tool{store: store} }

func (t *Tool) Name() string        { return "plan" }
func (t *Tool) Description() string { return "Submit an implementation plan for approval before making changes." }
func (t *Tool) Category() tools.Category { return tools.CategoryPlanning }
func (t *Tool) Flags() tools.Flags {
	return tools.Flags{DefaultApproval: tools.ApprovalRequired}
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan": {"type": "string", "description": "The plan to present for approval, in markdown."}
		},
		"required": ["plan"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Plan == "" {
		return tools.ErrorResult("", "plan is required"), nil
	}

	t.store.setPlan(input.Plan)

	return &types.ToolResult{
		Output:   "plan recorded",
		Metadata: map[string]any{"approved": tc.Approved},
	}, nil
}
