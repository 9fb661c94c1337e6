package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cortexlabs/cortex/pkg/types"
)

func TestSnapshotAndUndoFileWrite(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	path := filepath.Join(work, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	mgr, err := New(home, "sess-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := mgr.SnapshotPaths([]string{path}); err != nil {
		t.Fatalf("SnapshotPaths: %v", err)
	}
	snapList := listSnapshots(mgr)
	if len(snapList) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapList))
	}
	hash := snapList[0].PerPathBlobs[path]
	mgr.RecordAction(types.UndoAction{Kind: types.UndoFileWrite, Path: path, PriorBlob: hash})

	if err := os.WriteFile(path, []byte("world"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}
	mgr.EndTurn("turn-1")

	if !mgr.HasPendingUndo() {
		t.Fatalf("expected pending undo")
	}

	if _, err := mgr.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after undo: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected file restored to 'hello', got %q", data)
	}

	if _, err := mgr.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after redo: %v", err)
	}
	if string(data) != "world" {
		t.Fatalf("expected file redone to 'world', got %q", data)
	}
}

func TestUndoFileCreateRemovesFile(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	path := filepath.Join(work, "new.txt")

	mgr, err := New(home, "sess-2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.WriteFile(path, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	mgr.RecordAction(types.UndoAction{Kind: types.UndoFileCreate, Path: path})
	mgr.EndTurn("turn-2")

	if _, err := mgr.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after undoing create, stat err=%v", err)
	}
}

func TestDiscardTurnDoesNotPushUndo(t *testing.T) {
	home := t.TempDir()
	mgr, err := New(home, "sess-3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mgr.RecordAction(types.UndoAction{Kind: types.UndoFileCreate, Path: "/tmp/whatever"})
	mgr.DiscardTurn()
	mgr.EndTurn("turn-3")
	if mgr.HasPendingUndo() {
		t.Fatalf("expected no pending undo after DiscardTurn")
	}
}

func listSnapshots(m *Manager) []types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	return out
}
