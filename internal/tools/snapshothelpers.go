package tools

import (
	"fmt"

	"github.com/cortexlabs/cortex/pkg/types"
)

// snapshotPriorState takes a content snapshot of path and returns its
// hash (or absent=true if the file didn't exist), for recording the
// "prior" side of an UndoAction before a tool mutates the file.
func snapshotPriorState(tc ToolContext, path string) (hash types.ContentHash, absent bool, err error) {
	id, err := tc.Snapshots.SnapshotPaths([]string{path})
	if err != nil {
		return "", false, fmt.Errorf("snapshot path: %w", err)
	}
	snap, ok := tc.Snapshots.Get(id)
	if !ok {
		return "", false, fmt.Errorf("snapshot: missing just-created snapshot %s", id)
	}
	if snap.PerPathAbsent[path] {
		return "", true, nil
	}
	return snap.PerPathBlobs[path], false, nil
}
