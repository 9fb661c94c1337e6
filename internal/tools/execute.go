package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// DefaultCommandTimeout bounds how long Execute waits when the caller
// doesn't supply a timeout.
const DefaultCommandTimeout = 2 * time.Minute

// ExecuteTool runs a shell command through the Process Runner. This is
// the only catalog entry that touches the network-adjacent or
// filesystem-adjacent danger zone directly by running arbitrary argv, so
// its default approval stance is "required".
type ExecuteTool struct{}

func NewExecuteTool() *ExecuteTool { return &ExecuteTool{} }

func (t *ExecuteTool) Name() string        { return "execute" }
func (t *ExecuteTool) Description() string { return "Run a shell command in the workspace and capture its output." }
func (t *ExecuteTool) Category() Category  { return CategoryExecution }
func (t *ExecuteTool) Flags() Flags {
	return Flags{ExecutesCommands: true, DefaultApproval: ApprovalRequired}
}

func (t *ExecuteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"oneOf": [
					{"type": "string"},
					{"type": "array", "items": {"type": "string"}, "minItems": 1}
				],
				"description": "Command to run, as a shell string or an argv array."
			},
			"workdir": {"type": "string", "description": "Working directory relative to the workspace."},
			"timeout_ms": {"type": "integer", "minimum": 1, "description": "Timeout in milliseconds."}
		},
		"required": ["command"]
	}`)
}

func (t *ExecuteTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Command   json.RawMessage `json:"command"`
		Workdir   string          `json:"workdir"`
		TimeoutMs int             `json:"timeout_ms"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	argv, viaShell, err := decodeCommand(input.Command)
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}
	if len(argv) == 0 {
		return ErrorResult("", "command is required"), nil
	}
	if !viaShell {
		if verr := ValidateArgv(argv); verr != nil {
			return ErrorResult("", verr.Error()), nil
		}
	}

	cwd := tc.Workspace
	if input.Workdir != "" {
		resolved, err := resolveWorkdir(tc.Workspace, input.Workdir)
		if err != nil {
			return ErrorResult("", err.Error()), nil
		}
		cwd = resolved
	}

	timeout := DefaultCommandTimeout
	if input.TimeoutMs > 0 {
		timeout = time.Duration(input.TimeoutMs) * time.Millisecond
	}

	opts := types.ExecOptions{Cwd: cwd, Timeout: timeout, CaptureOutput: true}

	var out types.ExecOutput
	if tc.Runner == nil {
		return ErrorResult("", "process runner is not configured"), nil
	}
	if tc.Lane != "" {
		out, err = tc.Runner.ExecuteInLane(ctx, tc.Lane, argv, opts)
	} else {
		out, err = tc.Runner.Execute(ctx, argv, opts)
	}
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}

	return &types.ToolResult{
		Output:  out.Aggregated,
		IsError: false, // a nonzero exit code or timeout is data, not a tool failure
		Metadata: map[string]any{
			"exit_code": out.ExitCode,
			"timed_out": out.TimedOut,
			"duration":  out.Duration.String(),
		},
	}, nil
}

func resolveWorkdir(workspace, workdir string) (string, error) {
	return (fsops.Resolver{Root: workspace}).Resolve(workdir)
}

// decodeCommand returns argv and whether it was built by wrapping a
// shell string in "/bin/sh -c" (in which case argv itself isn't
// validated as direct exec argv — the shell interprets it).
func decodeCommand(raw json.RawMessage) ([]string, bool, error) {
	if len(raw) == 0 {
		return nil, false, fmt.Errorf("command is required")
	}
	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, false, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, false, fmt.Errorf("command is required")
		}
		return []string{"/bin/sh", "-c", asString}, true, nil
	}
	return nil, false, fmt.Errorf("command must be a string or an array of strings")
}
