package types

import (
	"encoding/json"
	"time"
)

// EventMsgType discriminates the EventMsg closed sum type.
type EventMsgType string

const (
	EventUserMessage      EventMsgType = "user_message"
	EventAgentMessage     EventMsgType = "agent_message"
	EventAgentReasoning   EventMsgType = "agent_reasoning"
	EventToolCallStart    EventMsgType = "tool_call_start"
	EventToolCallOutput   EventMsgType = "tool_call_output"
	EventToolCallEnd      EventMsgType = "tool_call_end"
	EventApprovalRequest  EventMsgType = "approval_request"
	EventApprovalDecision EventMsgType = "approval_decision"
	EventUndoRequested    EventMsgType = "undo_requested"
	EventUndoCompleted    EventMsgType = "undo_completed"
	EventTokenCount       EventMsgType = "token_count"
	EventTurnDiff         EventMsgType = "turn_diff"
	EventError            EventMsgType = "error"
	EventTaskStarted       EventMsgType = "task_started"
	EventTaskComplete      EventMsgType = "task_complete"
	EventStreamError       EventMsgType = "stream_error"
	EventSessionConfigured EventMsgType = "session_configured"
	EventExecCommandEnd    EventMsgType = "exec_command_end"
)

// EventStream names the output stream a tool_call_output chunk came from.
type EventStream string

const (
	StreamStdout EventStream = "stdout"
	StreamStderr EventStream = "stderr"
)

// EventMsg is the closed sum type carried by every Event and by the
// event_msg rollout item. Only the fields relevant to Type are populated.
type EventMsg struct {
	Type EventMsgType `json:"type"`

	// user_message / agent_message
	Message      string   `json:"message,omitempty"`
	ID           string   `json:"id,omitempty"`
	ParentID     string   `json:"parent_id,omitempty"`
	Images       []string `json:"images,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`

	// agent_reasoning
	Text string `json:"text,omitempty"`

	// tool_call_start / tool_call_output / tool_call_end / exec_command_end
	CallID   string          `json:"call_id,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Chunk    string          `json:"chunk,omitempty"`
	Stream   EventStream     `json:"stream,omitempty"`
	Output   string          `json:"output,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Command        string `json:"command,omitempty"`
	FormattedOutput string `json:"formatted_output,omitempty"`
	ExitCode       int    `json:"exit_code,omitempty"`

	// approval_request / approval_decision
	Summary  string `json:"summary,omitempty"`
	Approved bool   `json:"approved,omitempty"`

	// undo_requested / undo_completed
	Target  string `json:"target,omitempty"`
	Success bool   `json:"success,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// token_count
	Tokens TokenUsage `json:"tokens,omitempty"`
	Cost   *float64   `json:"cost,omitempty"`
}

// Event wraps an EventMsg with a stable event id.
type Event struct {
	ID  string   `json:"id"`
	Msg EventMsg `json:"msg"`
}

// SessionMeta is the first line of every rollout file.
type SessionMeta struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	ForkPoint    string    `json:"fork_point,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Cwd          string    `json:"cwd"`
	Model        string    `json:"model"`
	CLIVersion   string    `json:"cli_version"`
	Instructions string    `json:"instructions,omitempty"`
}

// RolloutItemType discriminates the on-disk RolloutItem union.
type RolloutItemType string

const (
	RolloutSessionMeta RolloutItemType = "session_meta"
	RolloutEventMsg    RolloutItemType = "event_msg"
	RolloutSnapshot    RolloutItemType = "snapshot"
)

// RolloutItem is the discriminated union written as the "item" field of
// each rollout line.
type RolloutItem struct {
	Type       RolloutItemType `json:"type"`
	Meta       *SessionMeta    `json:"meta,omitempty"`
	Msg        *EventMsg       `json:"msg,omitempty"`
	SnapshotID string          `json:"snapshot_id,omitempty"`
}

// RolloutEntry is one line of a session's rollout file.
type RolloutEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Item      RolloutItem `json:"item"`
}
