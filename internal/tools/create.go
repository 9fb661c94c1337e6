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

// CreateTool writes a new file, failing if one already exists at the
// target path.
type CreateTool struct{}

func NewCreateTool() *CreateTool { return &CreateTool{} }

func (t *CreateTool) Name() string        { return "create" }
func (t *CreateTool) Description() string { return "Create a new file in the workspace with the given content. Fails if the file already exists." }
func (t *CreateTool) Category() Category  { return CategoryFilesystem }
func (t *CreateTool) Flags() Flags {
	return Flags{ModifiesFilesystem: true, DefaultApproval: ApprovalAuto}
}

func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to create (relative to workspace)."},
			"content": {"type": "string", "description": "File contents."}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *CreateTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return ErrorResult("", "file_path is required"), nil
	}

	resolved, err := (fsops.Resolver{Root: tc.Workspace}).Resolve(input.FilePath)
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}

	release := tc.Locker.Lock(resolved)
	defer release()

	if _, err := os.Stat(resolved); err == nil {
		return ErrorResult("", fmt.Sprintf("file already exists: %s", input.FilePath)), nil
	} else if !os.IsNotExist(err) {
		return ErrorResult("", fmt.Sprintf("stat file: %v", err)), nil
	}

	if tc.Snapshots != nil {
		if _, _, serr := snapshotPriorState(tc, resolved); serr != nil {
			return ErrorResult("", serr.Error()), nil
		}
		tc.Snapshots.RecordAction(types.UndoAction{
			Kind:        types.UndoFileCreate,
			Path:        resolved,
			PriorAbsent: true,
		})
	}

	if err := fsops.AtomicWrite(resolved, []byte(input.Content), 0o644); err != nil {
		return ErrorResult("", err.Error()), nil
	}

	return &types.ToolResult{
		Output: fmt.Sprintf("Created %s (%d bytes)", input.FilePath, len(input.Content)),
		Metadata: map[string]any{
			"file_path":     input.FilePath,
			"bytes_written": len(input.Content),
		},
	}, nil
}
