// Package catalog wires the full tool catalog into one Registry: the
// filesystem and execution tools from internal/tools, plus the web and
// planning subpackages that depend on it.
package catalog

import (
	"github.com/cortexlabs/cortex/internal/procrunner"
	"github.com/cortexlabs/cortex/internal/ratelimit"
	"github.com/cortexlabs/cortex/internal/snapshot"
	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/internal/tools/plan"
	"github.com/cortexlabs/cortex/internal/tools/web"
)

// Config bundles the collaborators the catalog's tools need.
type Config struct {
	Workspace     string
	Runner        *procrunner.Runner
	Snapshots     *snapshot.Manager
	SearchConfig  web.SearchConfig
	FetchMaxChars int
	// Limiter gates fetch_url and web_search calls, one bucket per tool
	// name. Nil disables limiting (every call allowed).
	Limiter *ratelimit.Limiter
}

// Build constructs a Registry with every catalog tool registered, and the
// plan/todo Store backing the planning tools so the turn loop can read it
// back between calls (e.g. to surface the live todo list to the caller).
func Build(cfg Config) (*tools.Registry, *plan.Store) {
	registry := tools.NewRegistry()

	registry.Register(tools.NewExecuteTool())
	registry.Register(tools.NewReadTool())
	registry.Register(tools.NewCreateTool())
	registry.Register(tools.NewEditTool())
	registry.Register(tools.NewMultiEditTool())
	registry.Register(tools.NewLSTool())
	registry.Register(tools.NewGrepTool())
	registry.Register(tools.NewGlobTool())
	registry.Register(tools.NewApplyPatchTool())

	registry.Register(web.NewFetchTool(cfg.FetchMaxChars, cfg.Limiter))
	registry.Register(web.NewSearchTool(cfg.SearchConfig, cfg.Limiter))

	store := plan.NewStore()
	registry.Register(plan.NewWriteTool(store))
	registry.Register(plan.NewReadTool(store))
	registry.Register(plan.NewTool(store))
	registry.Register(plan.NewQuestionsTool())

	return registry, store
}
