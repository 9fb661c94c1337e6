package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// EditTool applies one find/replace edit to an existing file.
type EditTool struct{}

func NewEditTool() *EditTool { return &EditTool{} }

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return "Replace text in a file. old_str must match exactly once unless change_all is set." }
func (t *EditTool) Category() Category  { return CategoryFilesystem }
func (t *EditTool) Flags() Flags {
	return Flags{ModifiesFilesystem: true, DefaultApproval: ApprovalAuto}
}

func (t *EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"old_str": {"type": "string"},
			"new_str": {"type": "string"},
			"change_all": {"type": "boolean", "description": "Replace every occurrence instead of requiring a unique match."}
		},
		"required": ["file_path", "old_str", "new_str"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		FilePath  string `json:"file_path"`
		OldStr    string `json:"old_str"`
		NewStr    string `json:"new_str"`
		ChangeAll bool   `json:"change_all"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return ErrorResult("", "file_path is required"), nil
	}
	if input.OldStr == "" {
		return ErrorResult("", "old_str is required"), nil
	}
	if input.OldStr == input.NewStr {
		return ErrorResult("", "old_str and new_str must differ"), nil
	}

	resolved, err := (fsops.Resolver{Root: tc.Workspace}).Resolve(input.FilePath)
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}

	release := tc.Locker.Lock(resolved)
	defer release()

	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult("", fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldStr)
	if count == 0 {
		return ErrorResult("", "old_str not found in file"), nil
	}
	if count > 1 && !input.ChangeAll {
		return ErrorResult("", fmt.Sprintf("old_str matches %d times; pass change_all or narrow the match", count)), nil
	}

	if tc.Snapshots != nil {
		prior, absent, serr := snapshotPriorState(tc, resolved)
		if serr != nil {
			return ErrorResult("", serr.Error()), nil
		}
		tc.Snapshots.RecordAction(types.UndoAction{Kind: types.UndoFileWrite, Path: resolved, PriorBlob: prior, PriorAbsent: absent})
	}

	var updated string
	if input.ChangeAll {
		updated = strings.ReplaceAll(content, input.OldStr, input.NewStr)
	} else {
		updated = strings.Replace(content, input.OldStr, input.NewStr, 1)
	}

	if err := fsops.AtomicWrite(resolved, []byte(updated), 0o644); err != nil {
		return ErrorResult("", err.Error()), nil
	}

	return &types.ToolResult{
		Output: fmt.Sprintf("Edited %s (%d replacement(s))", input.FilePath, count),
		Metadata: map[string]any{
			"file_path":    input.FilePath,
			"replacements": count,
		},
	}, nil
}
