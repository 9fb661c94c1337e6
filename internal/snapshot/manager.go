// Package snapshot implements the Snapshot/Undo Ledger: pre-write content
// snapshots of files a tool is about to modify, and the reversible
// per-turn undo/redo stacks built on top of them.
//
// Grounded on the TTL/capacity bookkeeping shape of internal/cache/dedupe.go
// (generalized from a dedupe cache to a content-addressed blob store) and
// the per-key locking idiom of internal/sessions/write_lock.go (generalized
// from session ids to snapshot sessions).
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlabs/cortex/pkg/types"
)

// errAbsent marks a path that did not exist at snapshot time.
var errAbsent = errors.New("snapshot: path absent")

// Manager owns content-addressed snapshots and the undo/redo stacks for
// one session, rooted at "<cortexHome>/snapshots/<sessionID>/".
type Manager struct {
	mu        sync.Mutex
	root      string
	snapshots map[string]types.Snapshot

	undoHistory []types.TurnUndoRecord
	redoHistory []types.TurnUndoRecord

	current []types.UndoAction // actions accumulated in the in-progress turn
}

// MaxUndoHistory bounds the UndoHistory stack to 50 turns.
const MaxUndoHistory = 50

// New creates a snapshot manager rooted at cortexHome/snapshots/sessionID.
func New(cortexHome, sessionID string) (*Manager, error) {
	root := filepath.Join(cortexHome, "snapshots", sessionID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	m := &Manager{root: root, snapshots: map[string]types.Snapshot{}}
	if err := m.loadIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.root, "index.json")
}

func (m *Manager) loadIndex() error {
	data, err := os.ReadFile(m.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot: read index: %w", err)
	}
	var list []types.Snapshot
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("snapshot: parse index: %w", err)
	}
	for _, s := range list {
		m.snapshots[s.ID] = s
	}
	return nil
}

func (m *Manager) saveIndexLocked() error {
	list := make([]types.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		list = append(list, s)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal index: %w", err)
	}
	tmp := m.indexPath() + fmt.Sprintf(".tmp.%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write index temp: %w", err)
	}
	return renameWithRetry(tmp, m.indexPath())
}

// SnapshotPaths captures the current content (or absence) of each path and
// returns a new snapshot id. It does not mutate the undo stacks; callers
// append a corresponding UndoAction themselves via RecordAction.
func (m *Manager) SnapshotPaths(paths []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := types.Snapshot{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		Paths:         append([]string(nil), paths...),
		PerPathBlobs:  map[string]types.ContentHash{},
		PerPathAbsent: map[string]bool{},
	}
	for _, p := range paths {
		hash, err := m.blobify(p)
		if errors.Is(err, errAbsent) {
			snap.PerPathAbsent[p] = true
			continue
		}
		if err != nil {
			return "", err
		}
		snap.PerPathBlobs[p] = hash
	}
	m.snapshots[snap.ID] = snap
	if err := m.saveIndexLocked(); err != nil {
		return "", err
	}
	return snap.ID, nil
}

// blobify reads path, content-addresses it under root/<hash-prefix>/<hash>,
// and returns the hash. Identical content across calls shares storage.
func (m *Manager) blobify(path string) (types.ContentHash, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errAbsent
	}
	if err != nil {
		return "", fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	blobDir := filepath.Join(m.root, hash[:2])
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create blob dir: %w", err)
	}
	blobPath := filepath.Join(blobDir, hash)
	if _, err := os.Stat(blobPath); errors.Is(err, os.ErrNotExist) {
		tmp := blobPath + fmt.Sprintf(".tmp.%d", os.Getpid())
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return "", fmt.Errorf("snapshot: write blob: %w", err)
		}
		if err := renameWithRetry(tmp, blobPath); err != nil {
			return "", err
		}
	}
	return types.ContentHash(hash), nil
}

// BlobContent returns the bytes stored for a content hash.
func (m *Manager) BlobContent(hash types.ContentHash) ([]byte, error) {
	blobPath := filepath.Join(m.root, string(hash)[:2], string(hash))
	return os.ReadFile(blobPath)
}

// Get returns a snapshot by id.
func (m *Manager) Get(id string) (types.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[id]
	return s, ok
}

// RecordAction appends an UndoAction to the session's current-turn list and
// clears RedoHistory: any new modifying action invalidates a pending redo.
func (m *Manager) RecordAction(action types.UndoAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = append(m.current, action)
	m.redoHistory = nil
}

// EndTurn pushes the accumulated current-turn actions onto UndoHistory as a
// single record (if non-empty) and resets the current-turn list. On
// overflow (capacity MaxUndoHistory) the oldest record is dropped.
func (m *Manager) EndTurn(turnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.current) == 0 {
		return
	}
	record := types.TurnUndoRecord{TurnID: turnID, Actions: m.current, CreatedAt: time.Now()}
	m.current = nil
	m.undoHistory = append(m.undoHistory, record)
	if len(m.undoHistory) > MaxUndoHistory {
		m.undoHistory = m.undoHistory[len(m.undoHistory)-MaxUndoHistory:]
	}
}

// DiscardTurn drops the accumulated current-turn actions without pushing
// them onto UndoHistory (used when a tool like MultiEdit partially fails
// and has already rolled back its own writes).
func (m *Manager) DiscardTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// HasPendingUndo reports whether UndoHistory has at least one record.
func (m *Manager) HasPendingUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undoHistory) > 0
}
