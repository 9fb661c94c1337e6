// Package config loads and validates cortex-home configuration: the
// default model, sandbox policy, approval policy, rate limits, and tool
// timeouts that the turn loop and its collaborators need at startup.
//
// Grounded on the teacher's internal/config package: the same YAML/JSON5
// loading with $include merge semantics and env-var expansion
// (loader.go), the same version-gate idiom (version.go), and the same
// plugin-validator extension point (plugin_validation.go).
package config

import (
	"fmt"
	"time"

	"github.com/cortexlabs/cortex/internal/approval"
	"github.com/cortexlabs/cortex/internal/ratelimit"
)

// Config is the top-level cortex-home configuration.
type Config struct {
	Version int `yaml:"version"`

	// CortexHome overrides $CORTEX_HOME (default ~/.cortex) when set in
	// the config file itself rather than the environment.
	CortexHome string `yaml:"cortex_home"`

	// DefaultModel is used for new sessions that don't specify one.
	DefaultModel string `yaml:"default_model"`

	MaxConcurrentTools int `yaml:"max_concurrent_tools"`

	ToolTimeout Duration `yaml:"tool_timeout"`

	Sandbox   SandboxConfig    `yaml:"sandbox"`
	Approval  approval.Policy  `yaml:"approval"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Logging   LoggingConfig    `yaml:"logging"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

// LoggingConfig controls the structured logger every component takes.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// TracingConfig controls OpenTelemetry tracing around turns, tool
// calls, and model round-trips.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// Default returns a Config with every field at its zero-but-usable
// setting, suitable as a base before applying a loaded file on top.
func Default() *Config {
	return &Config{
		Version:            CurrentVersion,
		DefaultModel:       "",
		MaxConcurrentTools: 4,
		ToolTimeout:        Duration(2 * time.Minute),
		Sandbox:            DefaultSandboxConfig(),
		Approval:           *approval.DefaultPolicy(),
		RateLimit:          ratelimit.DefaultConfig(),
		Logging:            LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads, merges $include directives, and decodes the config file at
// path on top of Default(). An empty path returns Default() unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	decoded, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg = mergeOnto(cfg, decoded)

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	if issues := pluginValidationIssues(cfg); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// mergeOnto overlays decoded onto base, so a config file only needs to
// specify what it wants to override. Top-level scalars and the two
// logging fields are copied when non-zero. The sandbox, approval,
// rate_limit and tracing sections are not merged field by field: each
// replaces base's section whole, and only when its trigger is set
// (sandbox: any field; approval: default_decision, allowlist or
// denylist; rate_limit: requests_per_second; tracing: endpoint or
// enabled). Fields a replaced section leaves out take their zero value.
func mergeOnto(base, decoded *Config) *Config {
	if decoded.Version != 0 {
		base.Version = decoded.Version
	}
	if decoded.CortexHome != "" {
		base.CortexHome = decoded.CortexHome
	}
	if decoded.DefaultModel != "" {
		base.DefaultModel = decoded.DefaultModel
	}
	if decoded.MaxConcurrentTools != 0 {
		base.MaxConcurrentTools = decoded.MaxConcurrentTools
	}
	if decoded.ToolTimeout != 0 {
		base.ToolTimeout = decoded.ToolTimeout
	}
	if decoded.Sandbox != (SandboxConfig{}) {
		base.Sandbox = decoded.Sandbox
	}
	if decoded.Approval.DefaultDecision != "" || len(decoded.Approval.Allowlist) > 0 || len(decoded.Approval.Denylist) > 0 {
		base.Approval = decoded.Approval
	}
	if decoded.RateLimit.RequestsPerSecond != 0 {
		base.RateLimit = decoded.RateLimit
	}
	if decoded.Logging.Level != "" {
		base.Logging.Level = decoded.Logging.Level
	}
	if decoded.Logging.Format != "" {
		base.Logging.Format = decoded.Logging.Format
	}
	if decoded.Tracing.Endpoint != "" || decoded.Tracing.Enabled {
		base.Tracing = decoded.Tracing
	}
	return base
}

// ValidationError reports one or more plugin-contributed config issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "config: invalid"
	}
	msg := "config: invalid:"
	for _, issue := range e.Issues {
		msg += "\n  - " + issue
	}
	return msg
}
