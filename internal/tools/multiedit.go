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

// MultiEditTool applies a batch of find/replace edits, each possibly
// against a different file, as a single unit: if any edit in the batch
// fails, every write already applied in this call is rolled back before
// the error is returned, so the turn's undo stack never records a
// partially-applied batch.
type MultiEditTool struct{}

func NewMultiEditTool() *MultiEditTool { return &MultiEditTool{} }

func (t *MultiEditTool) Name() string { return "multi_edit" }
func (t *MultiEditTool) Description() string {
	return "Apply a batch of find/replace edits across one or more files. All edits succeed or none are kept."
}
func (t *MultiEditTool) Category() Category { return CategoryFilesystem }
func (t *MultiEditTool) Flags() Flags {
	return Flags{ModifiesFilesystem: true, DefaultApproval: ApprovalAuto}
}

type multiEditEntry struct {
	FilePath  string `json:"file_path"`
	OldStr    string `json:"old_str"`
	NewStr    string `json:"new_str"`
	ChangeAll bool   `json:"change_all"`
}

func (t *MultiEditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"edits": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"file_path": {"type": "string"},
						"old_str": {"type": "string"},
						"new_str": {"type": "string"},
						"change_all": {"type": "boolean"}
					},
					"required": ["file_path", "old_str", "new_str"]
				}
			}
		},
		"required": ["edits"]
	}`)
}

// appliedEdit records what a successfully-applied edit needs to be
// rolled back in-memory (raw bytes, not a content hash) and, once the
// whole batch commits, what undo bookkeeping to record.
type appliedEdit struct {
	path       string
	priorBytes []byte
	priorHash  types.ContentHash
}

func (t *MultiEditTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Edits []multiEditEntry `json:"edits"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(input.Edits) == 0 {
		return ErrorResult("", "edits are required"), nil
	}

	resolver := fsops.Resolver{Root: tc.Workspace}
	resolvedPaths := make([]string, 0, len(input.Edits))
	for _, e := range input.Edits {
		r, err := resolver.Resolve(e.FilePath)
		if err != nil {
			return ErrorResult("", err.Error()), nil
		}
		resolvedPaths = append(resolvedPaths, r)
	}

	release := tc.Locker.LockAll(resolvedPaths)
	defer release()

	var applied []appliedEdit
	rollback := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			a := applied[i]
			_ = fsops.AtomicWrite(a.path, a.priorBytes, 0o644)
		}
	}

	replacements := 0
	for i, e := range input.Edits {
		path := resolvedPaths[i]
		if e.OldStr == "" {
			rollback()
			return ErrorResult("", fmt.Sprintf("edit %d: old_str is required", i)), nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			rollback()
			return ErrorResult("", fmt.Sprintf("edit %d: read %s: %v", i, e.FilePath, err)), nil
		}
		content := string(data)

		count := strings.Count(content, e.OldStr)
		if count == 0 {
			rollback()
			return ErrorResult("", fmt.Sprintf("edit %d: old_str not found in %s", i, e.FilePath)), nil
		}
		if count > 1 && !e.ChangeAll {
			rollback()
			return ErrorResult("", fmt.Sprintf("edit %d: old_str matches %d times in %s; pass change_all", i, count, e.FilePath)), nil
		}

		var priorHash types.ContentHash
		if tc.Snapshots != nil {
			hash, _, serr := snapshotPriorState(tc, path)
			if serr != nil {
				rollback()
				return ErrorResult("", serr.Error()), nil
			}
			priorHash = hash
		}

		var updated string
		if e.ChangeAll {
			updated = strings.ReplaceAll(content, e.OldStr, e.NewStr)
		} else {
			updated = strings.Replace(content, e.OldStr, e.NewStr, 1)
		}

		if err := fsops.AtomicWrite(path, []byte(updated), 0o644); err != nil {
			rollback()
			return ErrorResult("", fmt.Sprintf("edit %d: write %s: %v", i, e.FilePath, err)), nil
		}
		applied = append(applied, appliedEdit{path: path, priorBytes: data, priorHash: priorHash})
		replacements += count
	}

	// The whole batch committed: record one undo action per file now
	// that none of them will be rolled back in-process.
	if tc.Snapshots != nil {
		for _, a := range applied {
			tc.Snapshots.RecordAction(types.UndoAction{Kind: types.UndoFileWrite, Path: a.path, PriorBlob: a.priorHash})
		}
	}

	return &types.ToolResult{
		Output: fmt.Sprintf("Applied %d edit(s) across %d file(s)", len(input.Edits), len(applied)),
		Metadata: map[string]any{
			"edits_applied": len(input.Edits),
			"replacements":  replacements,
		},
	}, nil
}
