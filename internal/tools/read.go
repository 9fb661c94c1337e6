package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// DefaultReadLimit caps how many lines Read returns when the caller
// doesn't supply one.
const DefaultReadLimit = 2000

// ReadTool reads a workspace file with an optional line offset/limit.
type ReadTool struct{}

func NewReadTool() *ReadTool { return &ReadTool{} }

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read a file from the workspace, optionally starting at a line offset and capped at a line limit." }
func (t *ReadTool) Category() Category  { return CategoryFilesystem }
func (t *ReadTool) Flags() Flags {
	return Flags{DefaultApproval: ApprovalAuto}
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the file (relative to workspace)."},
			"offset": {"type": "integer", "minimum": 0, "description": "1-based line number to start from (default: 1)."},
			"limit": {"type": "integer", "minimum": 1, "description": "Maximum number of lines to return."}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
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

	info, err := os.Lstat(resolved)
	if err != nil {
		return ErrorResult("", fmt.Sprintf("stat file: %v", err)), nil
	}
	if err := fsops.RejectSpecial(info); err != nil {
		return ErrorResult("", err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return ErrorResult("", fmt.Sprintf("open file: %v", err)), nil
	}
	defer file.Close()

	offset := input.Offset
	if offset < 1 {
		offset = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var lines []string
	lineNo := 0
	truncated := false
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if len(lines) >= limit {
			truncated = true
			break
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ErrorResult("", fmt.Sprintf("read file: %v", err)), nil
	}

	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%6d\t%s\n", offset+i, line)
	}

	return &types.ToolResult{
		Output: b.String(),
		Metadata: map[string]any{
			"file_path": input.FilePath,
			"lines":     len(lines),
			"offset":    offset,
			"truncated": truncated,
		},
	}, nil
}
