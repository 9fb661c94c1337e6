// Package rollout implements the append-only per-session event log: the
// durable journal that makes sessions resumable and forkable.
//
// Grounded on the buffered-file-writer and per-id-locking idiom of
// internal/sessions/write_lock.go and the one-JSON-line-per-event shape of
// internal/agent/tape/tape.go in the reference corpus, generalized from an
// in-memory test fixture into a durable on-disk log.
package rollout

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

// ErrMetaAlreadyWritten is returned by RecordMeta when called more than once.
var ErrMetaAlreadyWritten = errors.New("rollout: session meta already written")

// Path returns the rollout file path for a session under cortexHome.
func Path(cortexHome, id string) string {
	return filepath.Join(cortexHome, "sessions", id+".jsonl")
}

// Recorder is a durable, append-only JSONL writer for one session's
// rollout. Writes are flushed after every entry: a crash loses at most the
// current line, never an earlier one.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	metaDone  bool
	log       *slog.Logger
	path      string
}

// Open creates (or appends to) the rollout file for session id under
// cortexHome/sessions/, creating parent directories as needed.
func Open(cortexHome, id string, log *slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Default()
	}
	path := Path(cortexHome, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create sessions dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	info, statErr := f.Stat()
	metaDone := statErr == nil && info.Size() > 0
	return &Recorder{
		file:     f,
		writer:   bufio.NewWriter(f),
		metaDone: metaDone,
		log:      log.With("component", "rollout", "session_id", id),
		path:     path,
	}, nil
}

// Path returns the on-disk path of this recorder's rollout file.
func (r *Recorder) Path() string { return r.path }

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		return err
	}
	return r.file.Close()
}

// RecordMeta appends the session's SessionMeta. It must be the first call
// made against a fresh Recorder; calling it twice returns
// ErrMetaAlreadyWritten.
func (r *Recorder) RecordMeta(meta types.SessionMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metaDone {
		return ErrMetaAlreadyWritten
	}
	item := types.RolloutItem{Type: types.RolloutSessionMeta, Meta: &meta}
	if err := r.appendLocked(meta.Timestamp, item); err != nil {
		return err
	}
	r.metaDone = true
	return nil
}

// RecordEvent appends one EventMsg to the rollout.
func (r *Recorder) RecordEvent(msg types.EventMsg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := types.RolloutItem{Type: types.RolloutEventMsg, Msg: &msg}
	return r.appendLocked(time.Now(), item)
}

// RecordSnapshot appends a reference to a snapshot id.
func (r *Recorder) RecordSnapshot(snapshotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := types.RolloutItem{Type: types.RolloutSnapshot, SnapshotID: snapshotID}
	return r.appendLocked(time.Now(), item)
}

// appendLocked marshals and writes one entry; caller must hold r.mu.
func (r *Recorder) appendLocked(ts time.Time, item types.RolloutItem) error {
	entry := types.RolloutEntry{Timestamp: ts, Item: item}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("rollout: marshal entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.writer.Write(data); err != nil {
		r.log.Error("rollout write failed", "error", err)
		return fmt.Errorf("rollout: write: %w", err)
	}
	if err := r.writer.Flush(); err != nil {
		r.log.Error("rollout flush failed", "error", err)
		return fmt.Errorf("rollout: flush: %w", err)
	}
	return nil
}
