// Package turnloop drives one session's submission -> model -> tools ->
// response cycle: the turn state machine, bounded concurrent tool
// dispatch, retry/backoff on retriable model errors, and automatic
// compaction when the model reports the context window is exceeded.
//
// Generalizes the teacher's internal/agent/loop.go AgenticLoop state
// machine (Init -> Stream -> ExecuteTools -> Complete/Continue) into the
// engine's eight-state machine, with Approving/Executing sub-states
// entered per tool call during ResolvingToolCalls, and reuses
// internal/agent/executor.go's bounded worker pool shape (a semaphore
// channel sized to max_concurrent_tools) for concurrent tool dispatch.
package turnloop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlabs/cortex/internal/approval"
	"github.com/cortexlabs/cortex/internal/errs"
	"github.com/cortexlabs/cortex/internal/parts"
	"github.com/cortexlabs/cortex/internal/procrunner"
	"github.com/cortexlabs/cortex/internal/responsestore"
	"github.com/cortexlabs/cortex/internal/rollout"
	"github.com/cortexlabs/cortex/internal/snapshot"
	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/internal/wire"
	"github.com/cortexlabs/cortex/pkg/types"
)

// Compactor summarizes older history into a replacement message when the
// model reports the context window is exceeded, returning how many prior
// messages it replaced.
type Compactor interface {
	Compact(ctx context.Context, history []types.Message) (summary types.Message, dropped int, err error)
}

// Config configures one Driver. Provider and Registry are required.
// Approvals, Snapshots, Responses, and Recorder may be nil: without
// Approvals every tool call is allowed, without Snapshots undo/redo
// return an error, without Responses tool results are not stored, and
// without Recorder events are not written to a rollout. Runner/Locker
// are required only if the registered tools need process execution or
// path locking; Compactor is optional (its absence surfaces a
// context-exceeded error instead of auto-compacting).
type Config struct {
	SessionID          string
	Model              string
	System             string
	Workspace          string
	MaxConcurrentTools int
	Retry              RetryPolicy

	Provider  ModelProvider
	Registry  *tools.Registry
	Approvals *approval.Coordinator
	Snapshots *snapshot.Manager
	Responses *responsestore.Store
	Recorder  *rollout.Recorder
	Runner    *procrunner.Runner
	Locker    *tools.PathLocker
	Lane      procrunner.Lane
	Compactor Compactor
}

// Driver runs one session's turn loop. One goroutine (Run) per session
// owns the message history, rollout recorder, and undo stack; the
// submission/event channels are the only cross-goroutine surface. Tool
// dispatch goroutines spawned from within a turn coordinate approval
// decisions back from Run through resolvedDecisions.
type Driver struct {
	cfg Config

	submissions <-chan wire.Submission
	events      chan<- types.Event

	history   []types.Message
	cancelled atomic.Bool

	state   State
	stateMu sync.Mutex

	resolvedMu        sync.Mutex
	resolvedDecisions map[string]approval.Decision
}

// New creates a Driver bound to one end of a wire.Channels pair.
func New(cfg Config, channels wire.Channels) *Driver {
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = 4
	}
	if cfg.Lane == "" {
		cfg.Lane = procrunner.LaneMain
	}
	cfg.Retry = cfg.Retry.sanitized()
	return &Driver{
		cfg:               cfg,
		submissions:       channels.Submit,
		events:            channels.Events,
		state:             StateIdle,
		resolvedDecisions: make(map[string]approval.Decision),
	}
}

// Cancel requests cancellation of any in-flight turn; consulted at every
// suspension point (model stream, approval wait, tool dispatch, retry
// delay), matching the teacher's context.Context + explicit flag
// dual-check idiom in internal/process/command_queue.go.
func (d *Driver) Cancel() {
	d.cancelled.Store(true)
}

func (d *Driver) setState(s State) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// State returns the driver's current top-level state.
func (d *Driver) State() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Driver) emit(msg types.EventMsg) {
	if d.cfg.Recorder != nil {
		_ = d.cfg.Recorder.RecordEvent(msg)
	}
	ev := types.Event{ID: uuid.NewString(), Msg: msg}
	select {
	case d.events <- ev:
	default:
		// The event channel is the caller's to drain; a full buffer must
		// never block the session goroutine indefinitely.
		go func() { d.events <- ev }()
	}
}

// Run processes submissions until the submission channel closes or ctx
// is done.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-d.submissions:
			if !ok {
				return nil
			}
			if err := d.handle(ctx, sub); err != nil {
				d.emit(types.EventMsg{Type: types.EventStreamError, Reason: err.Error()})
			}
		}
	}
}

func (d *Driver) handle(ctx context.Context, sub wire.Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	switch sub.Type {
	case wire.SubmitUserMessage:
		return d.runTurn(ctx, sub.Text, sub.Images)
	case wire.SubmitCancel:
		d.Cancel()
		return nil
	case wire.SubmitUndo:
		return d.undoOrRedo(d.cfg.Snapshots.Undo)
	case wire.SubmitRedo:
		return d.undoOrRedo(d.cfg.Snapshots.Redo)
	case wire.SubmitCompact:
		return d.compactNow(ctx)
	case wire.SubmitApprovalDecision:
		return d.handleApprovalDecision(sub)
	default:
		return fmt.Errorf("turnloop: unknown submission type %q", sub.Type)
	}
}

// handleApprovalDecision resolves a pending request and records the
// outcome in resolvedDecisions, where a dispatch goroutine blocked in
// awaitApproval polls for it. A decision for an unknown or already-
// expired request is a no-op: the dispatch goroutine will itself observe
// the expiry.
func (d *Driver) handleApprovalDecision(sub wire.Submission) error {
	decision := approval.Denied
	if sub.Approved {
		decision = approval.Allowed
	}
	if d.cfg.Approvals == nil {
		return nil
	}
	if _, err := d.cfg.Approvals.Resolve(sub.RequestID, decision, sub.ApplyToRestOfTurn); err != nil {
		return nil
	}
	d.resolvedMu.Lock()
	d.resolvedDecisions[sub.RequestID] = decision
	d.resolvedMu.Unlock()
	return nil
}

func (d *Driver) undoOrRedo(op func() (*snapshot.UndoResult, error)) error {
	if d.cfg.Snapshots == nil {
		return errs.New(errs.KindInvalidInput, "no snapshot manager configured", nil)
	}
	result, err := op()
	target := ""
	if result != nil {
		target = result.Record.TurnID
	}
	d.emit(types.EventMsg{Type: types.EventUndoRequested, Target: target})
	success := err == nil
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	d.emit(types.EventMsg{Type: types.EventUndoCompleted, Target: target, Success: success, Reason: reason})
	return err
}

func (d *Driver) compactNow(ctx context.Context) error {
	if d.cfg.Compactor == nil {
		return errs.New(errs.KindInvalidInput, "no compactor configured", nil)
	}
	return d.compact(ctx, nil)
}

// compact replaces the driver's history with the compactor's summary
// message followed by whatever the compactor didn't drop. When builder
// is non-nil a Compaction part is recorded on the in-flight assistant
// message.
func (d *Driver) compact(ctx context.Context, builder *parts.Builder) error {
	summary, dropped, err := d.cfg.Compactor.Compact(ctx, d.history)
	if err != nil {
		return errs.New(errs.KindModel, "compaction failed", err)
	}
	if dropped <= 0 {
		return errs.New(errs.KindModel, "compaction could not reduce context", nil)
	}
	kept := d.history
	if dropped < len(kept) {
		kept = kept[dropped:]
	} else {
		kept = nil
	}
	d.history = append([]types.Message{summary}, kept...)
	if builder != nil {
		_, _ = builder.AddCompaction(dropped, summary.Content)
	}
	return nil
}

func (d *Driver) runTurn(ctx context.Context, text string, images []string) error {
	turnID := uuid.NewString()
	d.setState(StateBuildingRequest)

	userMsgID := uuid.NewString()
	d.history = append(d.history, types.Message{Role: types.RoleUser, Content: text})
	d.emit(types.EventMsg{Type: types.EventUserMessage, Message: text, ID: userMsgID, Images: images})

	var finalFinish string
	for {
		if d.cancelled.Load() {
			return d.interrupt()
		}

		d.setState(StateAwaitingModel)
		builder := parts.Assistant(uuid.NewString(), d.cfg.SessionID, userMsgID, d.cfg.Model, d.cfg.Provider.Name(), nil)

		finishReason, tokens, err := d.streamWithRetry(ctx, builder)
		if err != nil {
			if errs.KindOf(err) == errs.KindCancelled || d.cancelled.Load() {
				return d.interrupt()
			}
			return err
		}

		d.setState(StateResolvingToolCalls)
		toolCalls := pendingToolCalls(builder)
		if len(toolCalls) == 0 {
			finalFinish = finishReason
			builder.Complete(finishReason, tokens, 0)
			msg := builder.Message()
			d.history = append(d.history, types.Message{Role: types.RoleAssistant, Content: textOf(msg)})
			d.emit(types.EventMsg{Type: types.EventAgentMessage, Message: textOf(msg), FinishReason: finishReason, ID: msg.ID})
			break
		}

		d.history = append(d.history, types.Message{Role: types.RoleAssistant, ToolCalls: toolCalls})

		if d.cancelled.Load() {
			return d.interrupt()
		}

		results := d.resolveToolCalls(ctx, turnID, builder, toolCalls)

		d.setState(StateAppendToolResults)
		for _, r := range results {
			d.history = append(d.history, types.Message{Role: types.RoleTool, Content: r.Output, ToolCallID: r.CallID})
			if d.cfg.Responses != nil {
				d.cfg.Responses.Store(r.CallID, toolNameFor(toolCalls, r.CallID), *r)
			}
		}

		if finishReason != "tool_use" {
			finalFinish = finishReason
			builder.Complete(finishReason, tokens, 0)
			msg := builder.Message()
			d.emit(types.EventMsg{Type: types.EventAgentMessage, Message: textOf(msg), FinishReason: finishReason, ID: msg.ID})
			break
		}
		d.setState(StateBuildingRequest)
	}

	d.setState(StateFinalising)
	if d.cfg.Snapshots != nil {
		d.cfg.Snapshots.EndTurn(turnID)
	}
	if d.cfg.Approvals != nil {
		d.cfg.Approvals.ClearTurn()
	}
	d.setState(StateRecordUsage)
	d.emit(types.EventMsg{Type: types.EventTaskComplete, FinishReason: finalFinish})
	d.setState(StateIdle)
	return nil
}

// interrupt handles a cancellation observed at a suspension point: it
// denies every outstanding approval, discards the turn's accumulated
// undo actions (a cancelled turn is not redoable), resets the cancel
// flag, and returns to Idle.
func (d *Driver) interrupt() error {
	d.emit(types.EventMsg{Type: types.EventStreamError, Reason: "cancelled"})
	if d.cfg.Approvals != nil {
		for _, req := range d.cfg.Approvals.Pending() {
			_, _ = d.cfg.Approvals.Resolve(req.ID, approval.Denied, false)
		}
	}
	if d.cfg.Snapshots != nil {
		d.cfg.Snapshots.DiscardTurn()
	}
	d.cancelled.Store(false)
	d.setState(StateIdle)
	return nil
}

func textOf(msg types.MessageWithParts) string {
	var out string
	for _, p := range msg.Parts {
		if p.Part.Kind == types.PartText {
			out += p.Part.Text
		}
	}
	return out
}

func pendingToolCalls(b *parts.Builder) []types.ToolCall {
	msg := b.Message()
	var calls []types.ToolCall
	for _, p := range msg.Parts {
		if p.Part.Kind == types.PartToolCall && p.Part.State == types.ToolCallPending {
			calls = append(calls, types.ToolCall{ID: p.Part.CallID, Name: p.Part.Name, Input: p.Part.Input})
		}
	}
	return calls
}

func toolNameFor(calls []types.ToolCall, callID string) string {
	for _, c := range calls {
		if c.ID == callID {
			return c.Name
		}
	}
	return ""
}

// streamWithRetry drives one model completion, retrying retriable
// provider errors with backoff (emitting a Retry part per attempt) and
// triggering compaction once on a model-kind context-exceeded error
// before giving the model one more attempt.
func (d *Driver) streamWithRetry(ctx context.Context, builder *parts.Builder) (string, types.TokenUsage, error) {
	policy := d.cfg.Retry
	var lastErr error
	compactedOnce := false

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if d.cancelled.Load() {
			return "", types.TokenUsage{}, errs.New(errs.KindCancelled, "turn cancelled", nil)
		}

		req := &CompletionRequest{
			Model:    d.cfg.Model,
			System:   d.cfg.System,
			Messages: d.history,
		}
		if d.cfg.Registry != nil {
			req.ToolSpecs = toolSpecs(d.cfg.Registry)
		}

		chunkCh, err := d.cfg.Provider.Complete(ctx, req)
		if err != nil {
			lastErr = err
		} else {
			d.setState(StateStreamingAssistant)
			finishReason, tokens, streamErr := d.consume(chunkCh, builder)
			if streamErr == nil {
				return finishReason, tokens, nil
			}
			lastErr = streamErr
		}

		if errs.KindOf(lastErr) == errs.KindModel && !compactedOnce && d.cfg.Compactor != nil {
			compactedOnce = true
			if cerr := d.compact(ctx, builder); cerr != nil {
				return "", types.TokenUsage{}, cerr
			}
			attempt-- // the compaction pass does not use up an attempt
			continue
		}

		if !errs.Retriable(lastErr) || attempt == policy.MaxAttempts {
			break
		}

		_, _ = builder.AddRetry(attempt, lastErr.Error())
		d.emit(types.EventMsg{Type: types.EventStreamError, Reason: fmt.Sprintf("retry %d: %v", attempt, lastErr)})

		select {
		case <-ctx.Done():
			return "", types.TokenUsage{}, ctx.Err()
		case <-time.After(policy.backoff(attempt)):
		}
	}
	return "", types.TokenUsage{}, lastErr
}

func (d *Driver) consume(chunkCh <-chan *CompletionChunk, builder *parts.Builder) (string, types.TokenUsage, error) {
	var finishReason string
	var tokens types.TokenUsage
	for chunk := range chunkCh {
		if chunk.Err != nil {
			return "", tokens, chunk.Err
		}
		if chunk.Text != "" {
			_ = builder.DeltaText(chunk.Text)
			d.emit(types.EventMsg{Type: types.EventAgentMessage, Message: chunk.Text})
		}
		if chunk.Thinking != "" {
			_ = builder.DeltaReasoning(chunk.Thinking)
			d.emit(types.EventMsg{Type: types.EventAgentReasoning, Text: chunk.Thinking})
		}
		if chunk.ToolCall != nil {
			_, _ = builder.AddToolCall(chunk.ToolCall.ID, chunk.ToolCall.Name, chunk.ToolCall.Input)
			d.emit(types.EventMsg{Type: types.EventToolCallStart, CallID: chunk.ToolCall.ID, Tool: chunk.ToolCall.Name, Input: chunk.ToolCall.Input})
		}
		if chunk.Done {
			finishReason = chunk.FinishReason
			tokens = types.TokenUsage{Input: chunk.InputTokens, Output: chunk.OutputTokens}
		}
	}
	return finishReason, tokens, nil
}

func toolSpecs(reg *tools.Registry) []ToolSpec {
	list := reg.List()
	specs := make([]ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

// resolveToolCalls runs every pending tool call to completion: an
// approval check (auto-deciding, or parking a request and blocking until
// a decision, expiry, or cancellation), then bounded concurrent dispatch
// through the tool registry. The result order matches toolCalls, not
// completion order, so the turn loop can append them to history
// deterministically.
func (d *Driver) resolveToolCalls(ctx context.Context, turnID string, builder *parts.Builder, toolCalls []types.ToolCall) []*types.ToolResult {
	results := make([]*types.ToolResult, len(toolCalls))
	sem := make(chan struct{}, d.cfg.MaxConcurrentTools)
	var wg sync.WaitGroup

	for i, call := range toolCalls {
		i, call := i, call
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.dispatchOne(ctx, turnID, builder, call)
		}()
	}
	wg.Wait()
	return results
}

// dispatchOne runs the approval gate and, if cleared, executes one tool
// call, updating the shared message-parts builder and emitting
// tool_call_start/tool_call_end throughout.
func (d *Driver) dispatchOne(ctx context.Context, turnID string, builder *parts.Builder, call types.ToolCall) *types.ToolResult {
	tool, ok := d.cfg.Registry.Get(call.Name)
	if !ok {
		_ = builder.ErrorTool(call.ID, fmt.Errorf("tool not found: %s", call.Name))
		return tools.ErrorResult(call.ID, "tool not found: "+call.Name)
	}

	approved, reason := d.awaitApproval(turnID, tool, call)
	if !approved {
		_ = builder.ErrorTool(call.ID, fmt.Errorf("denied: %s", reason))
		d.emit(types.EventMsg{Type: types.EventToolCallEnd, CallID: call.ID, Tool: call.Name, IsError: true, Output: reason})
		return tools.ErrorResult(call.ID, "approval denied: "+reason)
	}
	if d.cancelled.Load() {
		_ = builder.ErrorTool(call.ID, fmt.Errorf("cancelled"))
		return tools.ErrorResult(call.ID, "cancelled")
	}

	_ = builder.UpdateToolRunning(call.ID, "")
	d.emit(types.EventMsg{Type: types.EventToolCallStart, CallID: call.ID, Tool: call.Name, Input: call.Input})

	tc := tools.ToolContext{
		Workspace: d.cfg.Workspace,
		Snapshots: d.cfg.Snapshots,
		Runner:    d.cfg.Runner,
		Lane:      d.cfg.Lane,
		Locker:    d.cfg.Locker,
		Approved:  approved,
	}

	result, err := d.cfg.Registry.Execute(ctx, tc, call.ID, call.Name, call.Input)
	if err != nil {
		_ = builder.ErrorTool(call.ID, err)
		d.emit(types.EventMsg{Type: types.EventToolCallEnd, CallID: call.ID, Tool: call.Name, IsError: true, Output: err.Error()})
		return tools.ErrorResult(call.ID, err.Error())
	}

	if result.IsError {
		_ = builder.ErrorTool(call.ID, fmt.Errorf("%s", result.Output))
	} else {
		_ = builder.CompleteTool(call.ID, result.Output, result.Title, result.Metadata)
	}
	d.emit(types.EventMsg{Type: types.EventToolCallEnd, CallID: call.ID, Tool: call.Name, Output: result.Output, IsError: result.IsError, Metadata: result.Metadata})
	return result
}

// awaitApproval checks the tool call against the approval coordinator's
// policy. A Pending decision parks a request, emits approval_request,
// and blocks (polling resolvedDecisions, populated by Run's submission
// handler) until a decision arrives, the request expires, or the turn
// is cancelled.
func (d *Driver) awaitApproval(turnID string, tool tools.Tool, call types.ToolCall) (bool, string) {
	if d.cfg.Approvals == nil {
		return true, "no approval coordinator configured"
	}

	decision, reason := d.cfg.Approvals.Check(call.Name, tool.Flags().DefaultApproval == tools.ApprovalRequired)
	if decision == approval.Allowed {
		return true, reason
	}
	if decision == approval.Denied {
		return false, reason
	}

	req := d.cfg.Approvals.CreateRequest(turnID, call.ID, call.Name, call.Input, reason)
	d.emit(types.EventMsg{Type: types.EventApprovalRequest, CallID: call.ID, Tool: call.Name, Input: call.Input, Summary: reason, ID: req.ID})

	for {
		if d.cancelled.Load() {
			_, _ = d.cfg.Approvals.Resolve(req.ID, approval.Denied, false)
			return false, "cancelled while awaiting approval"
		}
		if decided, ok := d.takeResolved(req.ID); ok {
			d.emit(types.EventMsg{Type: types.EventApprovalDecision, CallID: call.ID, Tool: call.Name, Approved: decided == approval.Allowed, ID: req.ID})
			return decided == approval.Allowed, "caller decision"
		}
		for _, expired := range d.cfg.Approvals.ExpirePending() {
			if expired.ID == req.ID {
				return false, "approval request expired"
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// takeResolved reports whether requestID has a decision recorded by
// handleApprovalDecision, consuming it if so.
func (d *Driver) takeResolved(requestID string) (approval.Decision, bool) {
	d.resolvedMu.Lock()
	defer d.resolvedMu.Unlock()
	dec, ok := d.resolvedDecisions[requestID]
	if ok {
		delete(d.resolvedDecisions, requestID)
	}
	return dec, ok
}
