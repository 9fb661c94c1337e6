// Package responsestore implements a bounded, TTL-aware cache of tool
// outputs: entries are produced by tool execution and consumed (once) by
// the turn loop when it builds the next model request.
//
// Directly generalizes internal/cache/dedupe.go's TTL+capacity+oldest-wins
// eviction (there keyed by message id for dedup, a boolean-valued cache)
// into a call_id -> StoredResponse cache holding a real payload and
// read/take semantics.
package responsestore

import (
	"sync"
	"time"

	"github.com/cortexlabs/cortex/pkg/types"
)

// Config configures a Store's capacity and TTL. RemoveOnRead is carried
// in the config but no Store method consults it: Get always leaves the
// entry in place, and read entries leave only via Take or CleanupRead.
type Config struct {
	MaxSize      int
	TTL          time.Duration
	RemoveOnRead bool
}

// DefaultConfig returns the standard defaults: 500 entries, 5 minute TTL,
// remove-on-read enabled.
func DefaultConfig() Config {
	return Config{MaxSize: 500, TTL: 5 * time.Minute, RemoveOnRead: true}
}

// CleanupInterval bounds how often a store-mutating call triggers a TTL
// sweep: at most once per interval, not on every call.
const CleanupInterval = time.Minute

// Stats exposes observability counters.
type Stats struct {
	TotalStored     int64
	Reads           int64
	Takes           int64
	Evictions       int64
	ExpiredCleanups int64
}

// Store is a bounded, TTL-aware cache of ToolResult entries keyed by
// call_id.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]types.StoredResponse
	stats   Stats

	lastCleanup time.Time
}

// New creates a Store with the given config; zero-value fields fall back
// to DefaultConfig's values.
func New(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &Store{cfg: cfg, entries: map[string]types.StoredResponse{}}
}

// Store inserts or replaces the entry for call_id. At capacity, the entry
// with the smallest stored_at is evicted first.
func (s *Store) Store(callID, toolName string, result types.ToolResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeCleanupLocked(time.Now())

	if _, exists := s.entries[callID]; !exists && len(s.entries) >= s.cfg.MaxSize {
		s.evictOldestLocked()
	}
	s.entries[callID] = types.StoredResponse{
		Result:   result,
		ToolName: toolName,
		StoredAt: time.Now(),
	}
	s.stats.TotalStored++
}

// Get returns the entry for call_id, marking it read, but leaves it in
// the store.
func (s *Store) Get(callID string) (types.StoredResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeCleanupLocked(time.Now())

	entry, ok := s.entries[callID]
	if !ok {
		return types.StoredResponse{}, false
	}
	entry.Read = true
	s.entries[callID] = entry
	s.stats.Reads++
	return entry, true
}

// Take removes and returns the entry for call_id. A second Take for the
// same id returns ok=false.
func (s *Store) Take(callID string) (types.StoredResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeCleanupLocked(time.Now())

	entry, ok := s.entries[callID]
	if !ok {
		return types.StoredResponse{}, false
	}
	delete(s.entries, callID)
	s.stats.Takes++
	return entry, true
}

// Contains reports whether call_id is present without mutating state.
func (s *Store) Contains(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[callID]
	return ok
}

// Len returns the current number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]types.StoredResponse{}
}

// Stats returns a snapshot of the observability counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CleanupExpired removes every entry older than the configured TTL.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupExpiredLocked(time.Now())
}

// CleanupRead removes every entry that has been Get'd (read=true).
func (s *Store) CleanupRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.Read {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *Store) maybeCleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < CleanupInterval {
		return
	}
	s.lastCleanup = now
	s.cleanupExpiredLocked(now)
}

func (s *Store) cleanupExpiredLocked(now time.Time) int {
	removed := 0
	cutoff := now.Add(-s.cfg.TTL)
	for id, e := range s.entries {
		if e.StoredAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.stats.ExpiredCleanups += int64(removed)
	}
	return removed
}

func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, e := range s.entries {
		if first || e.StoredAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.StoredAt
			first = false
		}
	}
	if oldestID != "" {
		delete(s.entries, oldestID)
		s.stats.Evictions++
	}
}
