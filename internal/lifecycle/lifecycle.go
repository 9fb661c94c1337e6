package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlabs/cortex/internal/rollout"
	"github.com/cortexlabs/cortex/internal/snapshot"
	"github.com/cortexlabs/cortex/pkg/types"
)

// SessionIndex is the secondary-index surface a lifecycle Manager can
// query against, satisfied by both the embedded sqlite Index and the
// optional PostgresIndex.
type SessionIndex interface {
	Upsert(ctx context.Context, meta types.SessionMeta) error
	Touch(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, parentID string, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// Manager is the entry point for session lifecycle operations: new,
// resume, fork, list. It owns the cortex home directory and the
// optional secondary index used to speed up List.
type Manager struct {
	cortexHome string
	log        *slog.Logger
	index      SessionIndex // optional; nil means List falls back to scanning rollout files
}

// New creates a lifecycle Manager rooted at cortexHome. index may be nil.
func New(cortexHome string, index SessionIndex, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cortexHome: cortexHome, log: log, index: index}
}

// Session is a resumed or newly created session's durable state: its
// rollout recorder, snapshot manager, and replayed message history.
type Session struct {
	ID      string
	Meta    types.SessionMeta
	History []types.Message

	Recorder  *rollout.Recorder
	Snapshots *snapshot.Manager
}

// NewSession starts a brand new session: a fresh id, an empty rollout
// file with just the session_meta line, and a snapshot manager rooted
// under the same session id.
func (m *Manager) NewSession(ctx context.Context, model, cwd, instructions string) (*Session, error) {
	id := uuid.NewString()
	meta := types.SessionMeta{
		ID:        id,
		Timestamp: time.Now(),
		Cwd:       cwd,
		Model:     model,
		CLIVersion: "dev",
		Instructions: instructions,
	}
	return m.open(ctx, meta, nil)
}

// ResumeSession reopens an existing session by id, replaying its rollout
// file into a Message history the turn loop can resume from.
func (m *Manager) ResumeSession(ctx context.Context, id string) (*Session, error) {
	entries, err := rollout.ReadAll(rollout.Path(m.cortexHome, id), m.log)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resume %s: %w", id, err)
	}
	meta, ok := rollout.GetSessionMeta(entries)
	if !ok {
		return nil, fmt.Errorf("lifecycle: session %s has no meta line", id)
	}
	history := replayHistory(rollout.GetEvents(entries))
	return m.open(ctx, meta, history)
}

// ForkSession creates a new session whose history is a copy of parent's
// history up to and including the message at forkPoint (a 0-based index
// into the parent's user+assistant messages; a non-numeric forkPoint is
// matched as a literal event id instead), re-recorded as
// fresh EventMsg entries with new timestamps in the fork's own rollout
// file rather than byte-copied — see DESIGN.md's open-question decision
// on fork re-recording.
func (m *Manager) ForkSession(ctx context.Context, parentID, forkPoint string) (*Session, error) {
	entries, err := rollout.ReadAll(rollout.Path(m.cortexHome, parentID), m.log)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: fork from %s: %w", parentID, err)
	}
	parentMeta, ok := rollout.GetSessionMeta(entries)
	if !ok {
		return nil, fmt.Errorf("lifecycle: parent session %s has no meta line", parentID)
	}

	events := rollout.GetEvents(entries)
	if forkPoint != "" {
		events = truncateAtEvent(events, forkPoint)
	}

	id := uuid.NewString()
	meta := types.SessionMeta{
		ID:           id,
		ParentID:     parentID,
		ForkPoint:    forkPoint,
		Timestamp:    time.Now(),
		Cwd:          parentMeta.Cwd,
		Model:        parentMeta.Model,
		CLIVersion:   "dev",
		Instructions: parentMeta.Instructions,
	}

	sess, err := m.open(ctx, meta, replayHistory(events))
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := sess.Recorder.RecordEvent(ev); err != nil {
			return nil, fmt.Errorf("lifecycle: re-record fork history: %w", err)
		}
	}
	return sess, nil
}

// open is the shared tail of NewSession/ResumeSession/ForkSession: it
// opens (or creates) the rollout recorder, writes the meta line if this
// is a fresh session, opens the snapshot manager, and upserts the index.
func (m *Manager) open(ctx context.Context, meta types.SessionMeta, history []types.Message) (*Session, error) {
	rec, err := rollout.Open(m.cortexHome, meta.ID, m.log)
	if err != nil {
		return nil, err
	}
	if err := rec.RecordMeta(meta); err != nil && err != rollout.ErrMetaAlreadyWritten {
		rec.Close()
		return nil, fmt.Errorf("lifecycle: record meta: %w", err)
	}

	snaps, err := snapshot.New(m.cortexHome, meta.ID)
	if err != nil {
		rec.Close()
		return nil, fmt.Errorf("lifecycle: open snapshot manager: %w", err)
	}

	if m.index != nil {
		if err := m.index.Upsert(ctx, meta); err != nil {
			m.log.Warn("lifecycle: index upsert failed", "session_id", meta.ID, "error", err)
		}
	}

	return &Session{
		ID:        meta.ID,
		Meta:      meta,
		History:   history,
		Recorder:  rec,
		Snapshots: snaps,
	}, nil
}

// Summary is one entry in a List result.
type Summary struct {
	ID        string
	ParentID  string
	Model     string
	Cwd       string
	GitBranch string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// List returns known sessions, most recently updated first. It consults
// the secondary index if one is configured (fast path); otherwise it
// scans every rollout file's header (slow path, still correct).
func (m *Manager) List(ctx context.Context, limit int) ([]Summary, error) {
	if m.index != nil {
		records, err := m.index.List(ctx, "", limit)
		if err != nil {
			return nil, err
		}
		out := make([]Summary, 0, len(records))
		for _, r := range records {
			out = append(out, Summary{ID: r.ID, ParentID: r.ParentID, Model: r.Model, Cwd: r.Cwd, GitBranch: gitBranchFor(r.Cwd), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
		}
		return out, nil
	}

	summaries, err := rollout.List(m.cortexHome, m.log)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	out := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, Summary{ID: s.Meta.ID, ParentID: s.Meta.ParentID, Model: s.Meta.Model, Cwd: s.Meta.Cwd, GitBranch: gitBranchFor(s.Meta.Cwd), CreatedAt: s.Meta.Timestamp})
	}
	return out, nil
}

// gitBranchFor best-effort resolves the current branch of dir, returning
// "" if dir doesn't exist, isn't a git repo, or the lookup otherwise
// fails. A session listing never errors over this.
func gitBranchFor(dir string) string {
	if dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); err != nil {
		return ""
	}
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// replayHistory rebuilds the Message slice the turn loop needs from a
// session's recorded events, mirroring the branch store's replay-to-
// rebuild-state pattern: history is derived by folding events forward
// rather than persisted as a parallel structure.
func replayHistory(events []types.EventMsg) []types.Message {
	var history []types.Message
	for _, ev := range events {
		switch ev.Type {
		case types.EventUserMessage:
			history = append(history, types.Message{Role: types.RoleUser, Content: ev.Message})
		case types.EventAgentMessage:
			if ev.Message != "" {
				history = append(history, types.Message{Role: types.RoleAssistant, Content: ev.Message})
			}
		case types.EventToolCallEnd:
			history = append(history, types.Message{Role: types.RoleTool, Content: ev.Output, ToolCallID: ev.CallID})
		}
	}
	return history
}

// truncateAtEvent cuts a parent session's replayed events at forkPoint, a
// 0-based index into the user+assistant message sequence (not a raw
// rollout line or event count), matching the original engine's
// Session::fork: the cut lands right after the (forkPoint+1)-th
// UserMessage/AgentMessage event, carrying along whatever other events
// (tool calls, approvals) sit between messages. A forkPoint that isn't a
// valid index is tried as a literal event id instead, for callers that
// already recorded a fork point that way.
func truncateAtEvent(events []types.EventMsg, forkPoint string) []types.EventMsg {
	idx, err := strconv.Atoi(forkPoint)
	if err != nil {
		for i, ev := range events {
			if ev.ID == forkPoint {
				return events[:i+1]
			}
		}
		return events
	}
	count := -1
	for i, ev := range events {
		if ev.Type == types.EventUserMessage || ev.Type == types.EventAgentMessage {
			count++
			if count >= idx {
				return events[:i+1]
			}
		}
	}
	return events
}
