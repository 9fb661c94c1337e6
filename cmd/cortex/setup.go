package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cortexlabs/cortex/internal/approval"
	"github.com/cortexlabs/cortex/internal/catalog"
	"github.com/cortexlabs/cortex/internal/config"
	"github.com/cortexlabs/cortex/internal/lifecycle"
	"github.com/cortexlabs/cortex/internal/observability"
	"github.com/cortexlabs/cortex/internal/procrunner"
	"github.com/cortexlabs/cortex/internal/ratelimit"
	"github.com/cortexlabs/cortex/internal/responsestore"
	"github.com/cortexlabs/cortex/internal/tools"
	"github.com/cortexlabs/cortex/internal/tools/plan"
)

// resolveHome applies the --home flag, $CORTEX_HOME, and the ~/.cortex
// fallback in that order.
func resolveHome(cmd *cobra.Command) (string, error) {
	home, _ := cmd.Flags().GetString("home")
	if home != "" {
		return home, nil
	}
	if env := os.Getenv("CORTEX_HOME"); env != "" {
		return env, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve cortex home: %w", err)
	}
	return filepath.Join(dir, ".cortex"), nil
}

// loadConfig reads --config (or Default() if unset) and returns it with
// a new logger built from its logging settings.
func loadConfig(cmd *cobra.Command) (*config.Config, *observability.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, logger, nil
}

// engine bundles every collaborator a running turn loop needs, assembled
// once per invocation from config and the lifecycle-opened session.
type engine struct {
	cfg       *config.Config
	logger    *observability.Logger
	tracer    *observability.Tracer
	shutdown  func() error
	metrics   *observability.Metrics
	manager   *lifecycle.Manager
	registry  *tools.Registry
	planStore *plan.Store
	runner    *procrunner.Runner
	locker    *tools.PathLocker
	approvals *approval.Coordinator
	responses *responsestore.Store
	limiter   *ratelimit.Limiter
	workspace string
}

// newEngine wires the tool catalog, approval coordinator, response
// store, and process runner shared across every session a single CLI
// invocation drives, grounded on the teacher's per-command
// "load config, open collaborators, defer close" sequencing.
func newEngine(cmd *cobra.Command) (*engine, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	home, err := resolveHome(cmd)
	if err != nil {
		return nil, err
	}
	cfg.CortexHome = home

	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "cortex",
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Attributes:     cfg.Tracing.Attributes,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	runner := procrunner.New(10 * 1024 * 1024)
	runner.SetLaneConcurrency(procrunner.LaneMain, cfg.MaxConcurrentTools)

	manager := lifecycle.New(home, nil, logger.Slog())
	limiter := ratelimit.NewLimiter(cfg.RateLimit)

	registry, planStore := catalog.Build(catalog.Config{
		Workspace:     workspace,
		Runner:        runner,
		FetchMaxChars: 50_000,
		Limiter:       limiter,
	})

	return &engine{
		cfg:       cfg,
		logger:    logger,
		tracer:    tracer,
		shutdown:  func() error { return shutdown(cmd.Context()) },
		metrics:   observability.NewMetrics(),
		manager:   manager,
		registry:  registry,
		planStore: planStore,
		runner:    runner,
		locker:    tools.NewPathLocker(),
		approvals: approval.New(&cfg.Approval),
		responses: responsestore.New(responsestore.DefaultConfig()),
		limiter:   limiter,
		workspace: workspace,
	}, nil
}

func (e *engine) close() {
	_ = e.shutdown()
}
