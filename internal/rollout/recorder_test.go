package rollout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

func TestRecorderMetaFirstAndAppendOnly(t *testing.T) {
	dir := t.TempDir()
	rec, err := Open(dir, "sess-1", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	meta := types.SessionMeta{ID: "sess-1", Timestamp: time.Now(), Cwd: "/tmp", Model: "test-model"}
	if err := rec.RecordMeta(meta); err != nil {
		t.Fatalf("RecordMeta: %v", err)
	}
	if err := rec.RecordMeta(meta); err != ErrMetaAlreadyWritten {
		t.Fatalf("expected ErrMetaAlreadyWritten, got %v", err)
	}
	if err := rec.RecordEvent(types.EventMsg{Type: types.EventUserMessage, Message: "hi"}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := ReadAll(Path(dir, "sess-1"), nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Item.Type != types.RolloutSessionMeta {
		t.Fatalf("first entry must be session_meta, got %s", entries[0].Item.Type)
	}
	if entries[1].Item.Type != types.RolloutEventMsg {
		t.Fatalf("second entry must be event_msg, got %s", entries[1].Item.Type)
	}
}

func TestReadAllSkipsUnparseableLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions", "bad.jsonl")
	rec, err := Open(dir, "bad", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	meta := types.SessionMeta{ID: "bad", Timestamp: time.Now()}
	_ = rec.RecordMeta(meta)
	_ = rec.Close()

	appendRaw(t, path, "not json at all\n")

	entries, err := ReadAll(path, nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(entries))
	}
}

func TestListSortedDescending(t *testing.T) {
	dir := t.TempDir()
	older := openAndClose(t, dir, "s-old", time.Now().Add(-time.Hour))
	newer := openAndClose(t, dir, "s-new", time.Now())
	_ = older
	_ = newer

	summaries, err := List(dir, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Meta.ID != "s-new" {
		t.Fatalf("expected s-new first, got %s", summaries[0].Meta.ID)
	}
}

func openAndClose(t *testing.T, dir, id string, ts time.Time) string {
	t.Helper()
	rec, err := Open(dir, id, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := rec.RecordMeta(types.SessionMeta{ID: id, Timestamp: ts}); err != nil {
		t.Fatalf("RecordMeta: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return rec.Path()
}

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.Fatalf("write: %v", err)
	}
}
