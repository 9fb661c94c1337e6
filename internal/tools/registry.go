package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cortexlabs/cortex/pkg/types"
)

// MaxParamsSize bounds how large a tool call's raw argument payload may
// be before it's rejected without even reaching the tool.
const MaxParamsSize = 10 << 20 // 10MB

// Registry holds the fixed catalog of tools available to a session,
// compiling each tool's schema once at registration time.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds tool to the catalog, compiling its declared schema.
// Panics on a malformed schema: a broken schema is a programming error
// in the catalog, not a runtime condition.
func (r *Registry) Register(tool Tool) {
	compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", string(tool.Schema()))
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %q: %v", tool.Name(), err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = compiled
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, for presentation to the model.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute validates params against the tool's compiled schema and, if
// valid, dispatches to it. Validation failures and unknown tool names
// produce an is_error ToolResult rather than a Go error: a bad call is
// returned to the model, not treated as a driver fault.
func (r *Registry) Execute(ctx context.Context, tc ToolContext, callID, name string, params json.RawMessage) (*types.ToolResult, error) {
	if len(params) > MaxParamsSize {
		return ErrorResult(callID, fmt.Sprintf("tool parameters exceed %d bytes", MaxParamsSize)), nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(callID, "tool not found: "+name), nil
	}

	var decoded any
	if len(params) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(params, &decoded); err != nil {
		return ErrorResult(callID, fmt.Sprintf("invalid JSON parameters: %v", err)), nil
	}
	if err := schema.Validate(decoded); err != nil {
		return ErrorResult(callID, fmt.Sprintf("parameters do not match schema: %v", err)), nil
	}

	result, err := tool.Execute(ctx, tc, params)
	if err != nil {
		return nil, err
	}
	if result != nil {
		result.CallID = callID
	}
	return result, nil
}
