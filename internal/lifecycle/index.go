// Package lifecycle implements session lifecycle operations — new,
// resume, fork, list — on top of the durable rollout log, plus an
// optional queryable secondary index so list() doesn't need to re-read
// every rollout file's header.
//
// Grounded on internal/sessions/memory.go's CRUD shape (Create/Get/
// Update/Delete/GetByKey), internal/sessions/hierarchy.go's parent/fork
// relationships, and internal/sessions/branch_store.go's replay-to-
// rebuild-state pattern (a fork replays its parent's history rather than
// sharing mutable state with it).
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cortexlabs/cortex/pkg/types"
)

// Record is one session index row: enough metadata to list and resume
// sessions without opening their rollout files.
type Record struct {
	ID        string
	ParentID  string
	ForkPoint string
	Model     string
	Cwd       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Index is a queryable secondary index over session metadata, backed by
// a pure-Go sqlite database. Every write also succeeds (or fails)
// independent of the rollout file itself — the index is a cache,
// rebuildable from rollout files if it's ever lost or corrupted.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if absent) the sqlite session index at path.
// path may be ":memory:" for a process-local, non-durable index.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open index: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) init() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			fork_point TEXT,
			model TEXT,
			cwd TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("lifecycle: create sessions table: %w", err)
	}
	_, err = idx.db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id)`)
	if err != nil {
		return fmt.Errorf("lifecycle: create parent index: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert records or refreshes one session's index row from its meta.
func (idx *Index) Upsert(ctx context.Context, meta types.SessionMeta) error {
	now := time.Now()
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO sessions (id, parent_id, fork_point, model, cwd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			fork_point = excluded.fork_point,
			model = excluded.model,
			cwd = excluded.cwd,
			updated_at = excluded.updated_at
	`, meta.ID, meta.ParentID, meta.ForkPoint, meta.Model, meta.Cwd, meta.Timestamp, now)
	if err != nil {
		return fmt.Errorf("lifecycle: upsert session %s: %w", meta.ID, err)
	}
	return nil
}

// Touch bumps a session's updated_at, called whenever a turn completes.
func (idx *Index) Touch(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("lifecycle: touch session %s: %w", id, err)
	}
	return nil
}

// Get returns one session's index row.
func (idx *Index) Get(ctx context.Context, id string) (Record, error) {
	row := idx.db.QueryRowContext(ctx, `
		SELECT id, parent_id, fork_point, model, cwd, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.ForkPoint, &rec.Model, &rec.Cwd, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("lifecycle: get session %s: %w", id, err)
	}
	return rec, nil
}

// List returns every session, most recently updated first, optionally
// restricted to direct children of parentID (empty string means all).
func (idx *Index) List(ctx context.Context, parentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, parent_id, fork_point, model, cwd, created_at, updated_at FROM sessions`
	args := []any{}
	if parentID != "" {
		query += ` WHERE parent_id = ?`
		args = append(args, parentID)
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ParentID, &rec.ForkPoint, &rec.Model, &rec.Cwd, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("lifecycle: scan session row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a session's index row; it does not touch the rollout
// file itself.
func (idx *Index) Delete(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("lifecycle: delete session %s: %w", id, err)
	}
	return nil
}
