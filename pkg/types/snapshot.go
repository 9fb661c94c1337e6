package types

import "time"

// ContentHash is a content-addressed blob identifier (hex SHA-256).
type ContentHash string

// Snapshot captures the content of a set of files at a point in time.
type Snapshot struct {
	ID            string                 `json:"id"`
	CreatedAt     time.Time              `json:"created_at"`
	Paths         []string               `json:"paths"`
	PerPathBlobs  map[string]ContentHash `json:"per_path_blobs"`
	PerPathAbsent map[string]bool        `json:"per_path_absent,omitempty"`
}

// UndoActionKind discriminates the UndoAction union.
type UndoActionKind string

const (
	UndoFileWrite  UndoActionKind = "file_write"
	UndoFileCreate UndoActionKind = "file_create"
	UndoFileDelete UndoActionKind = "file_delete"
	UndoFileRename UndoActionKind = "file_rename"
)

// UndoAction is one reversible filesystem operation recorded during a turn.
type UndoAction struct {
	Kind                UndoActionKind `json:"kind"`
	Path                string         `json:"path,omitempty"`
	PriorBlob           ContentHash    `json:"prior_blob,omitempty"`
	PriorAbsent         bool           `json:"prior_absent,omitempty"`
	From                string         `json:"from,omitempty"`
	To                  string         `json:"to,omitempty"`
	OverwritePriorBlob  ContentHash    `json:"overwrite_prior_blob,omitempty"`
	HadOverwritePrior   bool           `json:"had_overwrite_prior,omitempty"`
}

// TurnUndoRecord is the list of undo actions accumulated during one turn,
// pushed atomically onto UndoHistory at turn end.
type TurnUndoRecord struct {
	TurnID    string       `json:"turn_id"`
	Actions   []UndoAction `json:"actions"`
	CreatedAt time.Time    `json:"created_at"`
}
