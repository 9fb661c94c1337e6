package responsestore

import (
	"testing"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

func TestStoreTakeOnce(t *testing.T) {
	s := New(Config{MaxSize: 10, TTL: time.Minute})
	s.Store("call-1", "exec", types.ToolResult{Output: "hi"})

	if !s.Contains("call-1") {
		t.Fatalf("expected call-1 present")
	}
	entry, ok := s.Take("call-1")
	if !ok || entry.Result.Output != "hi" {
		t.Fatalf("expected Take to return stored result, got %+v ok=%v", entry, ok)
	}
	if s.Contains("call-1") {
		t.Fatalf("expected call-1 removed after Take")
	}
	if _, ok := s.Take("call-1"); ok {
		t.Fatalf("second Take should fail")
	}
}

func TestGetMarksReadWithoutRemoving(t *testing.T) {
	s := New(Config{MaxSize: 10, TTL: time.Minute})
	s.Store("call-2", "read", types.ToolResult{Output: "x"})

	first, ok := s.Get("call-2")
	if !ok || first.Read != true {
		t.Fatalf("expected Get to mark read, got %+v", first)
	}
	second, ok := s.Get("call-2")
	if !ok || second.Result.Output != "x" {
		t.Fatalf("expected second Get to still return entry, got %+v ok=%v", second, ok)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	s := New(Config{MaxSize: 3, TTL: time.Hour})
	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		s.mu.Lock()
		s.entries[id] = types.StoredResponse{Result: types.ToolResult{Output: id}, StoredAt: now.Add(time.Duration(i) * time.Second)}
		s.mu.Unlock()
	}
	s.Store("d", "tool", types.ToolResult{Output: "d"})

	if _, ok := s.Take("a"); ok {
		t.Fatalf("expected a to be evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if _, ok := s.Take(id); !ok {
			t.Fatalf("expected %s to survive eviction", id)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New(Config{MaxSize: 10, TTL: time.Millisecond})
	s.Store("call-3", "tool", types.ToolResult{Output: "stale"})
	time.Sleep(5 * time.Millisecond)
	removed := s.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := s.Get("call-3"); ok {
		t.Fatalf("expected expired entry gone")
	}
}
