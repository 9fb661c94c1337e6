package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cortexlabs/cortex/pkg/types"
)

// PostgresIndex is an alternative backing store for the session index,
// for deployments that already run Postgres for everything else and
// would rather not keep a second embedded sqlite file around. It
// implements the same Record/Upsert/Touch/Get/List/Delete surface as
// Index so callers can swap one for the other.
//
// Grounded on internal/sessions/cockroach.go's CockroachStore: a
// pooled *sql.DB opened from a config struct, with prepared statements
// for the hot paths.
type PostgresIndex struct {
	db *sql.DB

	stmtUpsert *sql.Stmt
	stmtTouch  *sql.Stmt
	stmtGet    *sql.Stmt
	stmtDelete *sql.Stmt
}

// PostgresIndexConfig configures the connection pool backing a
// PostgresIndex, mirroring CockroachConfig's shape.
type PostgresIndexConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresIndexConfig returns sane localhost defaults.
func DefaultPostgresIndexConfig() PostgresIndexConfig {
	return PostgresIndexConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "cortex",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// OpenPostgresIndex opens a connection pool, creates the sessions table
// if absent, and prepares the hot-path statements.
func OpenPostgresIndex(cfg PostgresIndexConfig) (*PostgresIndex, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open postgres index: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("lifecycle: ping postgres index: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			fork_point TEXT,
			model TEXT,
			cwd TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("lifecycle: create sessions table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("lifecycle: create parent index: %w", err)
	}

	pi := &PostgresIndex{db: db}
	if err := pi.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return pi, nil
}

func (pi *PostgresIndex) prepareStatements() error {
	var err error
	pi.stmtUpsert, err = pi.db.Prepare(`
		INSERT INTO sessions (id, parent_id, fork_point, model, cwd, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			fork_point = excluded.fork_point,
			model = excluded.model,
			cwd = excluded.cwd,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("lifecycle: prepare upsert: %w", err)
	}

	pi.stmtTouch, err = pi.db.Prepare(`UPDATE sessions SET updated_at = $1 WHERE id = $2`)
	if err != nil {
		return fmt.Errorf("lifecycle: prepare touch: %w", err)
	}

	pi.stmtGet, err = pi.db.Prepare(`
		SELECT id, parent_id, fork_point, model, cwd, created_at, updated_at
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("lifecycle: prepare get: %w", err)
	}

	pi.stmtDelete, err = pi.db.Prepare(`DELETE FROM sessions WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("lifecycle: prepare delete: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (pi *PostgresIndex) Close() error {
	return pi.db.Close()
}

// Upsert records or refreshes one session's index row.
func (pi *PostgresIndex) Upsert(ctx context.Context, meta types.SessionMeta) error {
	now := time.Now()
	_, err := pi.stmtUpsert.ExecContext(ctx, meta.ID, meta.ParentID, meta.ForkPoint, meta.Model, meta.Cwd, meta.Timestamp, now)
	if err != nil {
		return fmt.Errorf("lifecycle: upsert session %s: %w", meta.ID, err)
	}
	return nil
}

// Touch bumps a session's updated_at.
func (pi *PostgresIndex) Touch(ctx context.Context, id string) error {
	_, err := pi.stmtTouch.ExecContext(ctx, time.Now(), id)
	if err != nil {
		return fmt.Errorf("lifecycle: touch session %s: %w", id, err)
	}
	return nil
}

// Get returns one session's index row.
func (pi *PostgresIndex) Get(ctx context.Context, id string) (Record, error) {
	row := pi.stmtGet.QueryRowContext(ctx, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.ForkPoint, &rec.Model, &rec.Cwd, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("lifecycle: get session %s: %w", id, err)
	}
	return rec, nil
}

// List returns sessions, most recently updated first, optionally
// restricted to children of parentID.
func (pi *PostgresIndex) List(ctx context.Context, parentID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, parent_id, fork_point, model, cwd, created_at, updated_at FROM sessions`
	args := []any{}
	if parentID != "" {
		query += ` WHERE parent_id = $1 ORDER BY updated_at DESC LIMIT $2`
		args = append(args, parentID, limit)
	} else {
		query += ` ORDER BY updated_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := pi.db.QueryContext(ctx, query, args...)
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

// Delete removes a session's index row.
func (pi *PostgresIndex) Delete(ctx context.Context, id string) error {
	_, err := pi.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("lifecycle: delete session %s: %w", id, err)
	}
	return nil
}
