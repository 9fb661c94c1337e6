// Package approval implements the three-step approval protocol: a tool
// call that needs sign-off is parked as a pending request, the turn loop
// emits an approval_request event, and the caller's decision (delivered
// on the submission channel) resolves it before execution continues.
//
// Grounded on the policy-matching shape of the teacher's
// internal/agent/approval.go (allow/deny/require lists, safe bins,
// skill allowlist, default decision) merged with the pending/approved/
// denied/expired request lifecycle of internal/tools/policy/approval.go.
package approval

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome of an approval check or a resolved request.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
	Pending Decision = "pending"
)

// Policy configures which tools auto-allow, auto-deny, or require a
// round trip to the caller.
type Policy struct {
	Allowlist       []string      `yaml:"allowlist" json:"allowlist"`
	Denylist        []string      `yaml:"denylist" json:"denylist"`
	RequireApproval []string      `yaml:"require_approval" json:"require_approval"`
	DefaultDecision Decision      `yaml:"default_decision" json:"default_decision"`
	RequestTTL      time.Duration `yaml:"request_ttl" json:"request_ttl"`
}

// DefaultPolicy mirrors the catalog's per-tool DefaultApproval flags:
// nothing is pre-allowed or pre-denied, and an unmatched tool falls back
// to pending (the caller decides via the tool's own Flags.DefaultApproval
// at the call site, not here).
func DefaultPolicy() *Policy {
	return &Policy{
		DefaultDecision: Pending,
		RequestTTL:      5 * time.Minute,
	}
}

// Request is one pending approval request for a tool call.
type Request struct {
	ID         string
	TurnID     string
	CallID     string
	ToolName   string
	Input      []byte
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Decision   Decision
	DecidedAt  time.Time
}

// Coordinator evaluates tool calls against a Policy and tracks pending
// requests until a decision arrives. One Coordinator per session; turn
// scoping (decisions inherited for the rest of a turn) is the caller's
// responsibility via Resolve's applyToRestOfTurn and ClearTurn.
type Coordinator struct {
	mu       sync.Mutex
	policy   *Policy
	pending  map[string]*Request
	turnAuto map[string]Decision // toolName -> decision, cleared at turn end
}

// New creates a Coordinator. A nil policy uses DefaultPolicy.
func New(policy *Policy) *Coordinator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Coordinator{
		policy:   policy,
		pending:  make(map[string]*Request),
		turnAuto: make(map[string]Decision),
	}
}

// Check evaluates a tool call against the policy and any decision already
// made earlier in the current turn. toolRequiresApproval reflects the
// tool's own Flags.DefaultApproval stance, consulted only when no policy rule or
// turn-scoped decision matches.
func (c *Coordinator) Check(toolName string, toolRequiresApproval bool) (Decision, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.turnAuto[toolName]; ok {
		return d, "decided earlier this turn"
	}
	if matchesPattern(c.policy.Denylist, toolName) {
		return Denied, "tool in denylist"
	}
	if matchesPattern(c.policy.Allowlist, toolName) {
		return Allowed, "tool in allowlist"
	}
	if matchesPattern(c.policy.RequireApproval, toolName) {
		return Pending, "tool requires approval by policy"
	}
	if !toolRequiresApproval {
		return Allowed, "tool defaults to auto-approval"
	}
	if c.policy.DefaultDecision != "" {
		return c.policy.DefaultDecision, "default policy"
	}
	return Pending, "default policy"
}

// CreateRequest parks a pending approval request for a tool call,
// returning it so the caller can build an approval_request event.
func (c *Coordinator) CreateRequest(turnID, callID, toolName string, input []byte, reason string) *Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.policy.RequestTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	req := &Request{
		ID:        uuid.NewString(),
		TurnID:    turnID,
		CallID:    callID,
		ToolName:  toolName,
		Input:     input,
		Reason:    reason,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
		Decision:  Pending,
	}
	c.pending[req.ID] = req
	return req
}

// Resolve applies a decision to a pending request. applyToRestOfTurn, when
// true, makes the decision apply to every later call to the same tool
// within the same turn without prompting again.
func (c *Coordinator) Resolve(requestID string, decision Decision, applyToRestOfTurn bool) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[requestID]
	if !ok {
		return nil, fmt.Errorf("approval: unknown request %s", requestID)
	}
	if time.Now().After(req.ExpiresAt) {
		return nil, fmt.Errorf("approval: request %s expired", requestID)
	}
	req.Decision = decision
	req.DecidedAt = time.Now()
	delete(c.pending, requestID)

	if applyToRestOfTurn {
		c.turnAuto[req.ToolName] = decision
	}
	return req, nil
}

// ClearTurn resets turn-scoped decisions, called once a turn ends.
func (c *Coordinator) ClearTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnAuto = make(map[string]Decision)
}

// Pending returns every still-outstanding request, oldest first.
func (c *Coordinator) Pending() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, 0, len(c.pending))
	for _, r := range c.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ExpirePending removes and returns any requests past their ExpiresAt,
// marked Denied; callers surface these as denied tool results.
func (c *Coordinator) ExpirePending() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var expired []*Request
	for id, r := range c.pending {
		if now.After(r.ExpiresAt) {
			r.Decision = Denied
			r.DecidedAt = now
			expired = append(expired, r)
			delete(c.pending, id)
		}
	}
	return expired
}

// matchesPattern supports exact match, "*" (match all), "prefix*", and
// "*suffix", matching the teacher's tool-name pattern matching.
func matchesPattern(patterns []string, toolName string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if pattern == "*" || pattern == toolName {
			return true
		}
		if strings.HasSuffix(pattern, "*") && strings.HasPrefix(toolName, pattern[:len(pattern)-1]) {
			return true
		}
		if strings.HasPrefix(pattern, "*") && strings.HasSuffix(toolName, pattern[1:]) {
			return true
		}
	}
	return false
}
