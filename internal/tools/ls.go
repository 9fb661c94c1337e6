package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// LSTool lists a directory's immediate contents. It never touches the
// filesystem beyond a single readdir, so it has no approval gate.
type LSTool struct{}

func NewLSTool() *LSTool { return &LSTool{} }

func (t *LSTool) Name() string        { return "ls" }
func (t *LSTool) Description() string { return "List the contents of a directory in the workspace." }
func (t *LSTool) Category() Category  { return CategoryFilesystem }
func (t *LSTool) Flags() Flags        { return Flags{DefaultApproval: ApprovalAuto} }

func (t *LSTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"directory_path": {"type": "string", "description": "Directory to list (relative to workspace; defaults to workspace root)."}
		}
	}`)
}

func (t *LSTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		DirectoryPath string `json:"directory_path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}

	resolver := fsops.Resolver{Root: tc.Workspace}
	dir := input.DirectoryPath
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	resolved, err := resolver.Resolve(dir)
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult("", fmt.Sprintf("read directory: %v", err)), nil
	}
	names := make([]string, 0, len(entries))
	var b strings.Builder
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = string(filepath.Separator)
		}
		names = append(names, e.Name()+suffix)
	}
	sort.Strings(names)
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}

	return &types.ToolResult{
		Output:   b.String(),
		Metadata: map[string]any{"directory_path": dir, "entries": len(names)},
	}, nil
}
