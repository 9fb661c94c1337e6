package catalog

import "testing"

func TestBuildRegistersEveryCatalogTool(t *testing.T) {
	registry, store := Build(Config{Workspace: t.TempDir()})
	if store == nil {
		t.Fatalf("expected a non-nil plan/todo store")
	}

	want := []string{
		"execute", "read", "create", "edit", "multi_edit", "ls",
		"grep", "glob", "apply_patch", "fetch_url", "web_search",
		"todo_write", "todo_read", "plan", "ask_questions",
	}
	for _, name := range want {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("catalog missing tool %q", name)
		}
	}

	if len(registry.List()) != len(want) {
		t.Errorf("registered %d tools, want %d", len(registry.List()), len(want))
	}
}
