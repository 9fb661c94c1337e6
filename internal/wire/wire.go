// Package wire defines the typed Submission/Event channels that
// external front ends (a TUI, an HTTP/WebSocket server, a CLI) use to
// drive a session, matching the teacher's dual-channel pattern of
// submitting typed commands and receiving typed events rather than a
// request/response RPC per action.
package wire

import (
	"fmt"

	"github.com/cortexlabs/cortex/pkg/types"
)

// Size limits on inbound submission payloads, matching the original
// engine's user-input validation ceilings: large enough for real use,
// small enough that one bad submission can't blow out memory or a
// rollout file.
const (
	MaxTextBytes  = 10 * 1024 * 1024
	MaxImageBytes = 20 * 1024 * 1024
)

// SubmissionType discriminates the Submission closed sum type.
type SubmissionType string

const (
	SubmitUserMessage      SubmissionType = "user_message"
	SubmitApprovalDecision SubmissionType = "approval_decision"
	SubmitCancel           SubmissionType = "cancel"
	SubmitUndo             SubmissionType = "undo"
	SubmitRedo             SubmissionType = "redo"
	SubmitCompact          SubmissionType = "compact"
)

// Submission is one inbound message to a session's submission channel.
type Submission struct {
	Type SubmissionType `json:"type"`

	// user_message
	Text   string   `json:"text,omitempty"`
	Images []string `json:"images,omitempty"`

	// approval_decision
	RequestID         string `json:"request_id,omitempty"`
	Approved          bool   `json:"approved,omitempty"`
	ApplyToRestOfTurn bool   `json:"apply_to_rest_of_turn,omitempty"`
}

// Validate rejects a submission whose payload is empty where required or
// exceeds the engine's size ceilings, before it ever reaches the rollout
// or a model request.
func (s Submission) Validate() error {
	switch s.Type {
	case SubmitUserMessage:
		if s.Text == "" && len(s.Images) == 0 {
			return fmt.Errorf("wire: user_message has no text or images")
		}
		if len(s.Text) > MaxTextBytes {
			return fmt.Errorf("wire: user_message text is %d bytes, exceeds %d byte limit", len(s.Text), MaxTextBytes)
		}
		for i, img := range s.Images {
			if len(img) > MaxImageBytes {
				return fmt.Errorf("wire: user_message image %d is %d bytes, exceeds %d byte limit", i, len(img), MaxImageBytes)
			}
		}
	case SubmitApprovalDecision:
		if s.RequestID == "" {
			return fmt.Errorf("wire: approval_decision has no request_id")
		}
	}
	return nil
}

// Channels is the session driver's view of one session's channel pair:
// it receives submissions and sends events. CallerChannels is the
// external caller's side.
type Channels struct {
	Submit <-chan Submission
	Events chan<- types.Event
}

// New creates a buffered submission/event channel pair and the two
// Channels views over them: one for the session driver (receives
// submissions, sends events) and one for the external caller (sends
// submissions, receives events).
func New(bufferSize int) (driver Channels, caller CallerChannels) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	submitCh := make(chan Submission, bufferSize)
	eventCh := make(chan types.Event, bufferSize)
	return Channels{Submit: submitCh, Events: eventCh},
		CallerChannels{Submit: submitCh, Events: eventCh}
}

// CallerChannels is the external caller's view: it sends submissions
// and receives events, the mirror image of Channels.
type CallerChannels struct {
	Submit chan<- Submission
	Events <-chan types.Event
}
