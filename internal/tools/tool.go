// Package tools defines the tool catalog exposed to the model and the
// registry that validates and dispatches calls into it.
package tools

import (
	"context"
	"encoding/json"

	"github.com/cortexlabs/cortex/internal/procrunner"
	"github.com/cortexlabs/cortex/internal/snapshot"
	"github.com/cortexlabs/cortex/pkg/types"
)

// Category groups tools for policy matching and catalog presentation.
type Category string

const (
	CategoryExecution Category = "execution"
	CategoryFilesystem Category = "filesystem"
	CategorySearch     Category = "search"
	CategoryWeb        Category = "web"
	CategoryPlanning   Category = "planning"
	CategoryWorkflow   Category = "workflow"
)

// Flags declares the side effects a tool may have, consulted by the
// approval coordinator when no explicit policy rule matches.
type Flags struct {
	ModifiesFilesystem bool
	ExecutesCommands   bool
	RequiresNetwork    bool
	DefaultApproval    ApprovalDefault
}

// ApprovalDefault is a tool's fallback approval stance.
type ApprovalDefault string

const (
	ApprovalAuto     ApprovalDefault = "auto"
	ApprovalRequired ApprovalDefault = "required"
)

// ToolContext carries the per-call collaborators a tool needs. It has no
// back-pointer to the owning session; the turn loop is the only caller
// that knows about sessions.
type ToolContext struct {
	Workspace string
	Snapshots *snapshot.Manager
	Runner    *procrunner.Runner
	Lane      procrunner.Lane
	Locker    *PathLocker

	// Approved is true when the approval coordinator has already cleared
	// this call; tools that branch on approval status (none currently do
	// their own gating) can consult it.
	Approved bool
}

// Tool is one entry in the catalog exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Flags() Flags
	Schema() json.RawMessage
	Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error)
}

// ErrorResult builds an is_error ToolResult for a validation or execution
// failure, keeping the call id so the turn loop can still thread it back
// to the model.
func ErrorResult(callID, msg string) *types.ToolResult {
	return &types.ToolResult{CallID: callID, Output: msg, IsError: true}
}
