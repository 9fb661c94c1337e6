package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGrepToolFindsMatches(t *testing.T) {
	tc, workspace := newTestContext(t)
	if err := os.WriteFile(filepath.Join(workspace, "a.go"), []byte("package a\nfunc Foo() {}\n"), 0o644); err != nil {
		t.Fatalf("seed a.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "b.go"), []byte("package b\nfunc Bar() {}\n"), 0o644); err != nil {
		t.Fatalf("seed b.go: %v", err)
	}

	tool := NewGrepTool()
	params, _ := json.Marshal(map[string]string{"pattern": "func Foo"})
	result, err := tool.Execute(context.Background(), tc, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Output)
	}
	if !strings.Contains(result.Output, "a.go") {
		t.Errorf("output %q missing a.go", result.Output)
	}
	if strings.Contains(result.Output, "b.go") {
		t.Errorf("output %q unexpectedly matched b.go", result.Output)
	}
}

func TestGrepToolRejectsInvalidPattern(t *testing.T) {
	tc, _ := newTestContext(t)
	tool := NewGrepTool()
	params, _ := json.Marshal(map[string]string{"pattern": "("})
	result, err := tool.Execute(context.Background(), tc, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for invalid regex")
	}
}

func TestGlobToolRecursiveMatch(t *testing.T) {
	tc, workspace := newTestContext(t)
	if err := os.MkdirAll(filepath.Join(workspace, "pkg", "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "pkg", "sub", "x.go"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed x.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "pkg", "y.txt"), []byte("y"), 0o644); err != nil {
		t.Fatalf("seed y.txt: %v", err)
	}

	tool := NewGlobTool()
	params, _ := json.Marshal(map[string]string{"pattern": "**/*.go"})
	result, err := tool.Execute(context.Background(), tc, params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Output)
	}
	if !strings.Contains(result.Output, "x.go") {
		t.Errorf("output %q missing x.go", result.Output)
	}
	if strings.Contains(result.Output, "y.txt") {
		t.Errorf("output %q unexpectedly matched y.txt", result.Output)
	}
}
