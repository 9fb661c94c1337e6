package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadAppliesOverridesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cortex.yaml", `
version: 1
default_model: claude-sonnet
tool_timeout: 30s
sandbox:
  enabled: true
  network_enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "claude-sonnet" {
		t.Fatalf("default model = %q", cfg.DefaultModel)
	}
	if cfg.ToolTimeout.Duration() != 30*time.Second {
		t.Fatalf("tool timeout = %s", cfg.ToolTimeout)
	}
	if !cfg.Sandbox.Enabled || cfg.Sandbox.NetworkEnabled {
		t.Fatalf("sandbox = %+v", cfg.Sandbox)
	}
	// Fields not present in the file keep their Default() value.
	if cfg.MaxConcurrentTools != 4 {
		t.Fatalf("max concurrent tools = %d, want default 4", cfg.MaxConcurrentTools)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
default_model: base-model
max_concurrent_tools: 8
`)
	path := writeFile(t, dir, "cortex.yaml", `
$include: base.yaml
default_model: overridden-model
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "overridden-model" {
		t.Fatalf("default model = %q, want override to win", cfg.DefaultModel)
	}
	if cfg.MaxConcurrentTools != 8 {
		t.Fatalf("max concurrent tools = %d, want 8 from include", cfg.MaxConcurrentTools)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("CORTEX_TEST_MODEL", "env-model")
	dir := t.TempDir()
	path := writeFile(t, dir, "cortex.yaml", `default_model: ${CORTEX_TEST_MODEL}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "env-model" {
		t.Fatalf("default model = %q, want expanded env var", cfg.DefaultModel)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cortex.yaml", `not_a_real_field: true`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unknown top-level field")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel != "" {
		t.Fatalf("default model = %q, want empty", cfg.DefaultModel)
	}
	if cfg.MaxConcurrentTools != 4 {
		t.Fatalf("max concurrent tools = %d, want 4", cfg.MaxConcurrentTools)
	}
}

func TestPluginValidatorRejectsConfig(t *testing.T) {
	RegisterPluginValidator(func(cfg *Config) []string {
		if cfg.DefaultModel == "forbidden" {
			return []string{"forbidden is not an allowed default model"}
		}
		return nil
	})
	t.Cleanup(func() { RegisterPluginValidator(nil) })

	dir := t.TempDir()
	path := writeFile(t, dir, "cortex.yaml", `default_model: forbidden`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected plugin validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
}
