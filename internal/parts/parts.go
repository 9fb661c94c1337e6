// Package parts assembles a types.MessageWithParts incrementally from
// streaming model/tool events, tracking part indices and tool-call state,
// and emits typed update/delta/removed events for observers.
//
// Generalizes the monotonic-sequence, event-sink shape of the teacher's
// internal/agent/event_emitter.go (EventEmitter.base/emit/nextSeq) from a
// flat run-level event stream to a per-message, per-part indexed stream
// over the shared pkg/types data model.
package parts

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

// DeltaKind discriminates which field of a part a PartDeltaEvent appends to.
type DeltaKind string

const (
	DeltaText       DeltaKind = "text"
	DeltaReasoning  DeltaKind = "reasoning"
	DeltaToolOutput DeltaKind = "tool_output"
)

// PartUpdatedEvent fires whenever a part is appended or mutated in place.
type PartUpdatedEvent struct {
	PartIndex int
	PartID    string
	Part      types.MessagePart
	StartedAt time.Time
}

// PartDeltaEvent carries one streaming chunk appended to an existing part.
type PartDeltaEvent struct {
	PartIndex int
	PartID    string
	Delta     DeltaKind
	Chunk     string
}

// PartRemovedEvent fires when a part is removed and indices are
// densely reassigned.
type PartRemovedEvent struct {
	PartIndex int
	PartID    string
}

// Sink receives builder events. Implementations must not block long;
// the turn loop forwards these onto its own event channel.
type Sink interface {
	OnPartUpdated(PartUpdatedEvent)
	OnPartDelta(PartDeltaEvent)
	OnPartRemoved(PartRemovedEvent)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) OnPartUpdated(PartUpdatedEvent) {}
func (NopSink) OnPartDelta(PartDeltaEvent)      {}
func (NopSink) OnPartRemoved(PartRemovedEvent)  {}

var idCounter uint64

func nextPartID(messageID string) string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("%s-part-%d", messageID, n)
}

// Builder incrementally assembles one types.MessageWithParts. One Builder
// per message; the Turn Loop creates a fresh Builder for the user message
// and another for each assistant message.
type Builder struct {
	mu        sync.Mutex
	msg       types.MessageWithParts
	sink      Sink
	byCallID  map[string]int // call_id -> part index, for tool-call mutation
	completed bool
}

// User creates a builder for a user-authored message.
func User(id, sessionID string, sink Sink) *Builder {
	return newBuilder(id, sessionID, types.RoleUser, sink)
}

// Assistant creates a builder for a model-authored message.
func Assistant(id, sessionID, parentID, model, provider string, sink Sink) *Builder {
	b := newBuilder(id, sessionID, types.RoleAssistant, sink)
	b.msg.ParentID = parentID
	b.msg.ModelID = model
	b.msg.ProviderID = provider
	return b
}

func newBuilder(id, sessionID string, role types.Role, sink Sink) *Builder {
	if sink == nil {
		sink = NopSink{}
	}
	return &Builder{
		msg: types.MessageWithParts{
			ID:        id,
			SessionID: sessionID,
			Role:      role,
			CreatedAt: time.Now(),
		},
		sink:     sink,
		byCallID: make(map[string]int),
	}
}

// Message returns a snapshot copy of the message built so far.
func (b *Builder) Message() types.MessageWithParts {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.msg
	out.Parts = append([]types.IndexedPart(nil), b.msg.Parts...)
	return out
}

func (b *Builder) appendPart(p types.MessagePart) (int, string, error) {
	if b.completed {
		return 0, "", fmt.Errorf("parts: message %s already completed", b.msg.ID)
	}
	idx := len(b.msg.Parts)
	id := nextPartID(b.msg.ID)
	ip := types.IndexedPart{Index: idx, PartID: id, Part: p, StartedAt: time.Now()}
	b.msg.Parts = append(b.msg.Parts, ip)
	return idx, id, nil
}

func (b *Builder) emitUpdated(idx int) {
	ip := b.msg.Parts[idx]
	b.sink.OnPartUpdated(PartUpdatedEvent{PartIndex: ip.Index, PartID: ip.PartID, Part: ip.Part, StartedAt: ip.StartedAt})
}

// AddText appends a new text part and returns its part id.
func (b *Builder) AddText(text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, id, err := b.appendPart(types.MessagePart{Kind: types.PartText, Text: text})
	if err != nil {
		return "", err
	}
	b.emitUpdated(idx)
	return id, nil
}

// AddReasoning appends a new reasoning part and returns its part id.
func (b *Builder) AddReasoning(text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, id, err := b.appendPart(types.MessagePart{Kind: types.PartReasoning, Text: text})
	if err != nil {
		return "", err
	}
	b.emitUpdated(idx)
	return id, nil
}

// DeltaText appends a chunk to the most recently added text part,
// creating one if none exists yet, and emits a PartDeltaEvent.
func (b *Builder) DeltaText(chunk string) error {
	return b.delta(types.PartText, DeltaText, chunk)
}

// DeltaReasoning appends a chunk to the most recently added reasoning
// part, creating one if none exists yet.
func (b *Builder) DeltaReasoning(chunk string) error {
	return b.delta(types.PartReasoning, DeltaReasoning, chunk)
}

func (b *Builder) delta(kind types.PartKind, dk DeltaKind, chunk string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := -1
	for i := len(b.msg.Parts) - 1; i >= 0; i-- {
		if b.msg.Parts[i].Part.Kind == kind {
			idx = i
			break
		}
	}
	if idx == -1 {
		var err error
		idx, _, err = b.appendPart(types.MessagePart{Kind: kind})
		if err != nil {
			return err
		}
	}
	b.msg.Parts[idx].Part.Text += chunk
	ip := b.msg.Parts[idx]
	b.sink.OnPartDelta(PartDeltaEvent{PartIndex: ip.Index, PartID: ip.PartID, Delta: dk, Chunk: chunk})
	return nil
}

// AddToolCall appends a new tool-call part in Pending state.
func (b *Builder) AddToolCall(callID, name string, input json.RawMessage) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, id, err := b.appendPart(types.MessagePart{
		Kind: types.PartToolCall, CallID: callID, Name: name, Input: input, State: types.ToolCallPending,
	})
	if err != nil {
		return "", err
	}
	b.byCallID[callID] = idx
	b.emitUpdated(idx)
	return id, nil
}

func (b *Builder) toolCallIndex(callID string) (int, error) {
	idx, ok := b.byCallID[callID]
	if !ok {
		return 0, fmt.Errorf("parts: unknown tool call %s", callID)
	}
	return idx, nil
}

// UpdateToolRunning transitions a tool call to Running, optionally
// setting a human-readable title.
func (b *Builder) UpdateToolRunning(callID, title string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.toolCallIndex(callID)
	if err != nil {
		return err
	}
	cur := b.msg.Parts[idx].Part.State
	if !types.CanAdvance(cur, types.ToolCallRunning) {
		return fmt.Errorf("parts: tool call %s cannot advance %s -> %s", callID, cur, types.ToolCallRunning)
	}
	b.msg.Parts[idx].Part.State = types.ToolCallRunning
	if title != "" {
		b.msg.Parts[idx].Part.Title = title
	}
	b.emitUpdated(idx)
	return nil
}

// DeltaToolOutput appends a streaming chunk of tool output.
func (b *Builder) DeltaToolOutput(callID, chunk string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.toolCallIndex(callID)
	if err != nil {
		return err
	}
	b.msg.Parts[idx].Part.Output += chunk
	ip := b.msg.Parts[idx]
	b.sink.OnPartDelta(PartDeltaEvent{PartIndex: ip.Index, PartID: ip.PartID, Delta: DeltaToolOutput, Chunk: chunk})
	return nil
}

// CompleteTool transitions a tool call to Completed with its final output.
func (b *Builder) CompleteTool(callID, output, title string, metadata map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.toolCallIndex(callID)
	if err != nil {
		return err
	}
	cur := b.msg.Parts[idx].Part.State
	if !types.CanAdvance(cur, types.ToolCallCompleted) {
		return fmt.Errorf("parts: tool call %s cannot advance %s -> %s", callID, cur, types.ToolCallCompleted)
	}
	p := &b.msg.Parts[idx].Part
	p.State = types.ToolCallCompleted
	p.Output = output
	if title != "" {
		p.Title = title
	}
	p.Metadata = metadata
	b.msg.Parts[idx].EndedAt = time.Now()
	b.emitUpdated(idx)
	return nil
}

// ErrorTool transitions a tool call to Error.
func (b *Builder) ErrorTool(callID string, callErr error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.toolCallIndex(callID)
	if err != nil {
		return err
	}
	cur := b.msg.Parts[idx].Part.State
	if !types.CanAdvance(cur, types.ToolCallError) {
		return fmt.Errorf("parts: tool call %s cannot advance %s -> %s", callID, cur, types.ToolCallError)
	}
	p := &b.msg.Parts[idx].Part
	p.State = types.ToolCallError
	p.IsError = true
	if callErr != nil {
		p.Output = callErr.Error()
	}
	b.msg.Parts[idx].EndedAt = time.Now()
	b.emitUpdated(idx)
	return nil
}

func (b *Builder) addSimple(p types.MessagePart) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, id, err := b.appendPart(p)
	if err != nil {
		return "", err
	}
	b.emitUpdated(idx)
	return id, nil
}

// AddFile appends a file reference part.
func (b *Builder) AddFile(path string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartFile, FilePath: path})
}

// AddSnapshot appends a snapshot reference part.
func (b *Builder) AddSnapshot(snapshotID string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartSnapshot, SnapshotID: snapshotID})
}

// AddPatch appends a unified-diff part.
func (b *Builder) AddPatch(diff string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartPatch, Patch: diff})
}

// AddStepStart appends a step-boundary marker.
func (b *Builder) AddStepStart() (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartStepStart})
}

// AddStepFinish appends a step-boundary marker.
func (b *Builder) AddStepFinish() (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartStepFinish})
}

// AddCompaction appends a context-compaction marker noting how many
// history items were dropped.
func (b *Builder) AddCompaction(droppedMessages int, summary string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartCompaction, DroppedMessages: droppedMessages, Summary: summary})
}

// AddSubtask appends a reference to a nested agent subtask.
func (b *Builder) AddSubtask(agentName string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartSubtask, AgentName: agentName})
}

// AddAgent appends a part attributing subsequent content to a named agent.
func (b *Builder) AddAgent(agentName string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartAgent, AgentName: agentName})
}

// AddRetry appends a retry-attempt marker.
func (b *Builder) AddRetry(attempt int, reason string) (string, error) {
	return b.addSimple(types.MessagePart{Kind: types.PartRetry, Attempt: attempt, Reason: reason})
}

// RemovePart removes a part by part id and densely reassigns the
// indices of every part after it.
func (b *Builder) RemovePart(partID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	at := -1
	for i, p := range b.msg.Parts {
		if p.PartID == partID {
			at = i
			break
		}
	}
	if at == -1 {
		return fmt.Errorf("parts: unknown part %s", partID)
	}
	removed := b.msg.Parts[at]
	b.msg.Parts = append(b.msg.Parts[:at], b.msg.Parts[at+1:]...)
	for i := at; i < len(b.msg.Parts); i++ {
		b.msg.Parts[i].Index = i
	}
	for callID, idx := range b.byCallID {
		switch {
		case idx == at:
			delete(b.byCallID, callID)
		case idx > at:
			b.byCallID[callID] = idx - 1
		}
	}
	b.sink.OnPartRemoved(PartRemovedEvent{PartIndex: at, PartID: removed.PartID})
	return nil
}

// Complete finalizes the message: sets CompletedAt, tokens, cost, and
// finish reason. After it, adding a new part fails; in-place changes to
// parts that already exist (deltas, tool-call updates, removal) are not
// blocked.
func (b *Builder) Complete(finishReason string, tokens types.TokenUsage, cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msg.CompletedAt = time.Now()
	b.msg.FinishReason = finishReason
	b.msg.Tokens = tokens
	b.msg.Cost = cost
	b.completed = true
}

// IsCompleted reports whether Complete has been called.
func (b *Builder) IsCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}
