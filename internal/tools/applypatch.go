package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// ApplyPatchTool parses a unified diff and applies it atomically, one
// snapshot per touched file, so a failure partway through can still be
// undone file-by-file.
type ApplyPatchTool struct{}

func NewApplyPatchTool() *ApplyPatchTool { return &ApplyPatchTool{} }

func (t *ApplyPatchTool) Name() string { return "apply_patch" }
func (t *ApplyPatchTool) Description() string {
	return "Apply a unified diff patch to one or more files in the workspace."
}
func (t *ApplyPatchTool) Category() Category { return CategoryFilesystem }
func (t *ApplyPatchTool) Flags() Flags {
	return Flags{ModifiesFilesystem: true, DefaultApproval: ApprovalAuto}
}

func (t *ApplyPatchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"patch": {"type": "string", "description": "Unified diff patch (---/+++ headers required)."}
		},
		"required": ["patch"]
	}`)
}

func (t *ApplyPatchTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Patch) == "" {
		return ErrorResult("", "patch is required"), nil
	}

	patches, err := parseUnifiedDiff(input.Patch)
	if err != nil {
		return ErrorResult("", err.Error()), nil
	}

	resolver := fsops.Resolver{Root: tc.Workspace}
	results := make([]map[string]any, 0, len(patches))
	for _, patch := range patches {
		resolved, err := resolver.Resolve(patch.Path)
		if err != nil {
			return ErrorResult("", err.Error()), nil
		}

		release := tc.Locker.Lock(resolved)
		data, err := os.ReadFile(resolved)
		if err != nil {
			release()
			return ErrorResult("", fmt.Sprintf("read %s: %v", patch.Path, err)), nil
		}

		updated, err := applyFilePatch(string(data), patch)
		if err != nil {
			release()
			return ErrorResult("", fmt.Sprintf("apply patch to %s: %v", patch.Path, err)), nil
		}

		if tc.Snapshots != nil {
			hash, _, serr := snapshotPriorState(tc, resolved)
			if serr != nil {
				release()
				return ErrorResult("", serr.Error()), nil
			}
			if err := fsops.AtomicWrite(resolved, []byte(updated.Content), 0o644); err != nil {
				release()
				return ErrorResult("", fmt.Sprintf("write %s: %v", patch.Path, err)), nil
			}
			tc.Snapshots.RecordAction(types.UndoAction{Kind: types.UndoFileWrite, Path: resolved, PriorBlob: hash})
		} else if err := fsops.AtomicWrite(resolved, []byte(updated.Content), 0o644); err != nil {
			release()
			return ErrorResult("", fmt.Sprintf("write %s: %v", patch.Path, err)), nil
		}
		release()

		results = append(results, map[string]any{
			"path":          patch.Path,
			"hunks":         len(patch.Hunks),
			"lines_added":   updated.Added,
			"lines_removed": updated.Removed,
		})
	}

	payload, err := json.MarshalIndent(map[string]any{"applied": results}, "", "  ")
	if err != nil {
		return ErrorResult("", fmt.Sprintf("encode result: %v", err)), nil
	}
	return &types.ToolResult{Output: string(payload), Metadata: map[string]any{"files_touched": len(results)}}, nil
}

type filePatch struct {
	Path  string
	Hunks []hunk
}

type hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []string
}

type patchResult struct {
	Content string
	Added   int
	Removed int
}

var hunkHeader = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

func parseUnifiedDiff(patch string) ([]filePatch, error) {
	lines := strings.Split(patch, "\n")
	var patches []filePatch
	var current *filePatch
	var currentHunk *hunk

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "index "):
			continue
		case strings.HasPrefix(line, "--- "):
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, fmt.Errorf("invalid patch: missing +++ header")
			}
			newPath := strings.TrimSpace(strings.TrimPrefix(lines[i+1], "+++ "))
			newPath = strings.TrimPrefix(strings.TrimPrefix(newPath, "b/"), "a/")
			patches = append(patches, filePatch{Path: newPath})
			current = &patches[len(patches)-1]
			currentHunk = nil
			i++
		case strings.HasPrefix(line, "@@ "):
			if current == nil {
				return nil, fmt.Errorf("invalid patch: hunk without file header")
			}
			match := hunkHeader.FindStringSubmatch(line)
			if match == nil {
				return nil, fmt.Errorf("invalid patch: malformed hunk header")
			}
			h := hunk{
				OldStart: atoi(match[1]),
				OldLines: atoiDefault(match[2], 1),
				NewStart: atoi(match[3]),
				NewLines: atoiDefault(match[4], 1),
			}
			current.Hunks = append(current.Hunks, h)
			currentHunk = &current.Hunks[len(current.Hunks)-1]
		default:
			if currentHunk == nil || line == "" || line == "\\ No newline at end of file" {
				continue
			}
			prefix := line[:1]
			if prefix != " " && prefix != "+" && prefix != "-" {
				return nil, fmt.Errorf("invalid patch line: %s", line)
			}
			currentHunk.Lines = append(currentHunk.Lines, line)
		}
	}

	if len(patches) == 0 {
		return nil, fmt.Errorf("invalid patch: no file headers found")
	}
	return patches, nil
}

func applyFilePatch(content string, patch filePatch) (patchResult, error) {
	hadTrailing := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")
	var lines []string
	if trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	added, removed := 0, 0
	for _, h := range patch.Hunks {
		idx := h.OldStart - 1
		if idx < 0 {
			idx = 0
		}
		for _, line := range h.Lines {
			if line == "" {
				continue
			}
			prefix := line[:1]
			text := ""
			if len(line) > 1 {
				text = line[1:]
			}
			switch prefix {
			case " ":
				if idx >= len(lines) || lines[idx] != text {
					return patchResult{}, fmt.Errorf("context mismatch at line %d", idx+1)
				}
				idx++
			case "-":
				if idx >= len(lines) || lines[idx] != text {
					return patchResult{}, fmt.Errorf("delete mismatch at line %d", idx+1)
				}
				lines = append(lines[:idx], lines[idx+1:]...)
				removed++
			case "+":
				lines = append(lines[:idx], append([]string{text}, lines[idx:]...)...)
				idx++
				added++
			}
		}
	}

	result := strings.Join(lines, "\n")
	if hadTrailing {
		result += "\n"
	}
	return patchResult{Content: result, Added: added, Removed: removed}, nil
}

func atoi(value string) int {
	out := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		out = out*10 + int(r-'0')
	}
	return out
}

func atoiDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if parsed := atoi(value); parsed != 0 {
		return parsed
	}
	return fallback
}
