package config

import "time"

// SandboxConfig controls the command/filesystem sandboxing policy that
// internal/procrunner and internal/tools apply to tool execution.
//
// Trimmed from the teacher's much larger SandboxConfig (container pool
// sizing, Daytona/firecracker backends) down to the knobs this engine's
// process runner actually consults: whether commands run sandboxed at
// all, whether they may reach the network, and the default per-call
// timeout.
type SandboxConfig struct {
	Enabled        bool     `yaml:"enabled"`
	NetworkEnabled bool     `yaml:"network_enabled"`
	Timeout        Duration `yaml:"timeout"`
	WorkspaceOnly  bool     `yaml:"workspace_only"` // restrict filesystem writes to the session workspace
}

// DefaultSandboxConfig disables sandboxing but still restricts writes to
// the workspace and caps command timeouts, matching the process
// runner's own defaults.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Enabled:        false,
		NetworkEnabled: true,
		Timeout:        Duration(2 * time.Minute),
		WorkspaceOnly:  true,
	}
}
