package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/pkg/types"
)

// QuestionsTool lets the model put one or more multiple-choice or
// free-text questions to the user. It has no side effects of its own
// and requires approval, so the turn pauses on it; the result is the
// numbered list of questions. An approval decision carries only allow
// or deny, so the user's answers are not returned through this tool.
type QuestionsTool struct{}

func NewQuestionsTool() *QuestionsTool { return &QuestionsTool{} }

func (t *QuestionsTool) Name() string        { return "ask_questions" }
func (t *QuestionsTool) Description() string { return "Ask the user one or more questions and wait for answers." }
func (t *QuestionsTool) Category() tools.Category { return tools.CategoryPlanning }
func (t *QuestionsTool) Flags() tools.Flags {
	return tools.Flags{DefaultApproval: tools.ApprovalRequired}
}

func (t *QuestionsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"},
						"options": {"type": "array", "items": {"type": "string"}}
					},
					"required": ["question"]
				}
			}
		},
		"required": ["questions"]
	}`)
}

type question struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

func (t *QuestionsTool) Execute(ctx context.Context, tc tools.ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Questions []question `json:"questions"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(input.Questions) == 0 {
		return tools.ErrorResult("", "at least one question is required"), nil
	}

	var b strings.Builder
	for i, q := range input.Questions {
		fmt.Fprintf(&b, "%d. %s", i+1, q.Question)
		if len(q.Options) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(q.Options, " / "))
		}
		b.WriteString("\n")
	}

	return &types.ToolResult{
		Output:   b.String(),
		Metadata: map[string]any{"question_count": len(input.Questions)},
	}, nil
}
