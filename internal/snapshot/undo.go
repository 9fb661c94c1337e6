package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cortexlabs/cortex/pkg/types"
)

// UndoResult reports which actions were successfully reversed.
type UndoResult struct {
	Record    types.TurnUndoRecord
	Succeeded []types.UndoAction
	Failed    map[types.UndoAction]error
}

// Undo pops the top record from UndoHistory, reverses each action in
// reverse order, and pushes the inverse actions onto RedoHistory. A
// partial failure (some actions succeed, some fail) does not abort the
// whole operation: succeeded actions are still redoable, and the caller
// is expected to surface Failed as an Error event without aborting the
// session.
func (m *Manager) Undo() (*UndoResult, error) {
	m.mu.Lock()
	if len(m.undoHistory) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("snapshot: no turn to undo")
	}
	record := m.undoHistory[len(m.undoHistory)-1]
	m.undoHistory = m.undoHistory[:len(m.undoHistory)-1]
	m.mu.Unlock()

	result := &UndoResult{Record: record, Failed: map[types.UndoAction]error{}}
	var inverse []types.UndoAction
	for i := len(record.Actions) - 1; i >= 0; i-- {
		action := record.Actions[i]
		inv, err := m.reverseAction(action)
		if err != nil {
			result.Failed[action] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, action)
		inverse = append(inverse, inv)
	}

	m.mu.Lock()
	if len(inverse) > 0 {
		m.redoHistory = append(m.redoHistory, types.TurnUndoRecord{
			TurnID:  record.TurnID,
			Actions: inverse,
		})
	}
	m.mu.Unlock()

	return result, nil
}

// Redo is symmetric to Undo: it pops the top RedoHistory record and
// reverses each of its (already-inverted) actions back onto UndoHistory.
func (m *Manager) Redo() (*UndoResult, error) {
	m.mu.Lock()
	if len(m.redoHistory) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("snapshot: no turn to redo")
	}
	record := m.redoHistory[len(m.redoHistory)-1]
	m.redoHistory = m.redoHistory[:len(m.redoHistory)-1]
	m.mu.Unlock()

	result := &UndoResult{Record: record, Failed: map[types.UndoAction]error{}}
	var inverse []types.UndoAction
	for i := len(record.Actions) - 1; i >= 0; i-- {
		action := record.Actions[i]
		inv, err := m.reverseAction(action)
		if err != nil {
			result.Failed[action] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, action)
		inverse = append(inverse, inv)
	}

	m.mu.Lock()
	if len(inverse) > 0 {
		m.undoHistory = append(m.undoHistory, types.TurnUndoRecord{
			TurnID:  record.TurnID,
			Actions: inverse,
		})
	}
	m.mu.Unlock()

	return result, nil
}

// reverseAction performs the inverse filesystem operation for one
// UndoAction and returns the action that would reverse *that*, for the
// opposing history stack.
func (m *Manager) reverseAction(action types.UndoAction) (types.UndoAction, error) {
	switch action.Kind {
	case types.UndoFileWrite:
		return m.reverseFileWrite(action)
	case types.UndoFileCreate:
		return m.reverseFileCreate(action)
	case types.UndoFileDelete:
		return m.reverseFileDelete(action)
	case types.UndoFileRename:
		return m.reverseFileRename(action)
	default:
		return types.UndoAction{}, fmt.Errorf("snapshot: unknown undo action kind %q", action.Kind)
	}
}

func (m *Manager) reverseFileWrite(action types.UndoAction) (types.UndoAction, error) {
	currentHash, currentAbsent, err := m.hashCurrent(action.Path)
	if err != nil {
		return types.UndoAction{}, err
	}
	if action.PriorAbsent {
		if err := os.Remove(action.Path); err != nil && !os.IsNotExist(err) {
			return types.UndoAction{}, fmt.Errorf("snapshot: remove %s: %w", action.Path, err)
		}
	} else {
		if err := m.restoreBlob(action.Path, action.PriorBlob); err != nil {
			return types.UndoAction{}, err
		}
	}
	return types.UndoAction{Kind: types.UndoFileWrite, Path: action.Path, PriorBlob: currentHash, PriorAbsent: currentAbsent}, nil
}

func (m *Manager) reverseFileCreate(action types.UndoAction) (types.UndoAction, error) {
	data, err := os.ReadFile(action.Path)
	absent := os.IsNotExist(err)
	if err != nil && !absent {
		return types.UndoAction{}, fmt.Errorf("snapshot: read %s: %w", action.Path, err)
	}
	if err := os.Remove(action.Path); err != nil && !os.IsNotExist(err) {
		return types.UndoAction{}, fmt.Errorf("snapshot: remove %s: %w", action.Path, err)
	}
	if absent {
		return types.UndoAction{Kind: types.UndoFileCreate, Path: action.Path}, nil
	}
	hash, err := m.blobify2(data)
	if err != nil {
		return types.UndoAction{}, err
	}
	return types.UndoAction{Kind: types.UndoFileWrite, Path: action.Path, PriorBlob: hash}, nil
}

func (m *Manager) reverseFileDelete(action types.UndoAction) (types.UndoAction, error) {
	if err := m.restoreBlob(action.Path, action.PriorBlob); err != nil {
		return types.UndoAction{}, err
	}
	return types.UndoAction{Kind: types.UndoFileCreate, Path: action.Path}, nil
}

func (m *Manager) reverseFileRename(action types.UndoAction) (types.UndoAction, error) {
	var overwritePresent bool
	var overwriteHash types.ContentHash
	if action.HadOverwritePrior {
		hash, absent, err := m.hashCurrent(action.To)
		if err != nil {
			return types.UndoAction{}, err
		}
		overwritePresent = !absent
		overwriteHash = hash
	}
	if err := renameWithRetry(action.To, action.From); err != nil {
		return types.UndoAction{}, fmt.Errorf("snapshot: rename %s->%s: %w", action.To, action.From, err)
	}
	if action.HadOverwritePrior && overwritePresent {
		if err := m.restoreBlob(action.To, overwriteHash); err != nil {
			return types.UndoAction{}, err
		}
	}
	return types.UndoAction{
		Kind: types.UndoFileRename, From: action.To, To: action.From,
		HadOverwritePrior:  action.HadOverwritePrior,
		OverwritePriorBlob: action.OverwritePriorBlob,
	}, nil
}

func (m *Manager) hashCurrent(path string) (types.ContentHash, bool, error) {
	hash, err := m.blobify(path)
	if err == errAbsent {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, false, nil
}

func (m *Manager) restoreBlob(path string, hash types.ContentHash) error {
	data, err := m.BlobContent(hash)
	if err != nil {
		return fmt.Errorf("snapshot: read blob %s: %w", hash, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: create parent dir: %w", err)
	}
	tmp := path + fmt.Sprintf(".tmp.%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write restore temp: %w", err)
	}
	return renameWithRetry(tmp, path)
}

func (m *Manager) blobify2(data []byte) (types.ContentHash, error) {
	tmpFile, err := os.CreateTemp("", "cortex-blobify-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", err
	}
	tmpFile.Close()
	return m.blobify(tmpFile.Name())
}
