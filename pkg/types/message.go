// Package types holds the data model shared across the session engine:
// messages, parts, tool results, snapshots, undo actions, and rate limiter
// state. Types here are persisted verbatim into the rollout log, so field
// names and JSON tags are part of the on-disk format.
package types

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the model-facing history element sent to the LLM provider.
type Message struct {
	Role        Role            `json:"role"`
	Content     string          `json:"content,omitempty"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Name        string          `json:"name,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolCallState is the tool-call part state machine. It progresses
// monotonically: Pending -> Running -> (Completed|Error).
type ToolCallState string

const (
	ToolCallPending   ToolCallState = "pending"
	ToolCallRunning   ToolCallState = "running"
	ToolCallCompleted ToolCallState = "completed"
	ToolCallError     ToolCallState = "error"
)

// toolCallStateOrder gives each state a monotonic rank for regression checks.
var toolCallStateOrder = map[ToolCallState]int{
	ToolCallPending:   0,
	ToolCallRunning:   1,
	ToolCallCompleted: 2,
	ToolCallError:     2,
}

// CanAdvance reports whether a transition from `from` to `to` is legal
// under the Pending -> Running -> (Completed|Error) state machine.
func CanAdvance(from, to ToolCallState) bool {
	fromRank, ok := toolCallStateOrder[from]
	if !ok {
		return false
	}
	toRank, ok := toolCallStateOrder[to]
	if !ok {
		return false
	}
	if from == to {
		return false
	}
	return toRank > fromRank
}

// MessageWithParts is the observer-facing rich form of a single message.
type MessageWithParts struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	Role         Role           `json:"role"`
	ParentID     string         `json:"parent_id,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	ProviderID   string         `json:"provider_id,omitempty"`
	Agent        string         `json:"agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  time.Time      `json:"completed_at,omitempty"`
	Tokens       TokenUsage     `json:"tokens"`
	Cost         float64        `json:"cost,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Parts        []IndexedPart  `json:"parts"`
}

// IsCompleted reports whether completed_at has been set; once true no
// further parts may be added to the message.
func (m *MessageWithParts) IsCompleted() bool {
	return !m.CompletedAt.IsZero()
}

// TokenUsage accumulates token accounting for one assistant message.
type TokenUsage struct {
	Input        int `json:"input"`
	CachedInput  int `json:"cached_input"`
	Output       int `json:"output"`
	Reasoning    int `json:"reasoning"`
}

// IndexedPart is one part within a message: a 0-based dense index, a
// stable per-message id, timing, and the part payload itself.
type IndexedPart struct {
	Index     int         `json:"index"`
	PartID    string      `json:"part_id"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Part      MessagePart `json:"part"`
}

// PartKind discriminates the MessagePart union.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartToolCall   PartKind = "tool_call"
	PartFile       PartKind = "file"
	PartSnapshot   PartKind = "snapshot"
	PartPatch      PartKind = "patch"
	PartAgent      PartKind = "agent"
	PartStepStart  PartKind = "step_start"
	PartStepFinish PartKind = "step_finish"
	PartCompaction PartKind = "compaction"
	PartSubtask    PartKind = "subtask"
	PartRetry      PartKind = "retry"
)

// MessagePart is a tagged union over the part kinds listed in PartKind.
// Only the fields relevant to Kind are populated.
type MessagePart struct {
	Kind PartKind `json:"kind"`

	// Text / Reasoning
	Text string `json:"text,omitempty"`

	// ToolCall
	CallID   string          `json:"call_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	State    ToolCallState   `json:"state,omitempty"`
	Output   string          `json:"output,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
	Title    string          `json:"title,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`

	// File
	FilePath string `json:"file_path,omitempty"`

	// Snapshot
	SnapshotID string `json:"snapshot_id,omitempty"`

	// Patch
	Patch string `json:"patch,omitempty"`

	// Agent / Subtask
	AgentName string `json:"agent_name,omitempty"`

	// Compaction
	DroppedMessages int `json:"dropped_messages,omitempty"`
	Summary         string `json:"summary,omitempty"`

	// Retry
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
