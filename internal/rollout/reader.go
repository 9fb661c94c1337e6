package rollout

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cortexlabs/cortex/pkg/types"
)

// maxLineSize bounds a single rollout line; lines larger than this are
// treated as unparseable rather than risking unbounded memory use.
const maxLineSize = 64 << 20

// ReadAll reads every entry from the rollout file at path, skipping (and
// logging) lines that fail to parse as JSON. Empty lines are ignored.
func ReadAll(path string, log *slog.Logger) ([]types.RolloutEntry, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []types.RolloutEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry types.RolloutEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			log.Warn("rollout: skipping unparseable line", "path", path, "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

// GetEvents extracts the EventMsg payload of every event_msg entry, in
// file order.
func GetEvents(entries []types.RolloutEntry) []types.EventMsg {
	var events []types.EventMsg
	for _, e := range entries {
		if e.Item.Type == types.RolloutEventMsg && e.Item.Msg != nil {
			events = append(events, *e.Item.Msg)
		}
	}
	return events
}

// GetSessionMeta returns the first session_meta entry found, if any.
func GetSessionMeta(entries []types.RolloutEntry) (types.SessionMeta, bool) {
	for _, e := range entries {
		if e.Item.Type == types.RolloutSessionMeta && e.Item.Meta != nil {
			return *e.Item.Meta, true
		}
	}
	return types.SessionMeta{}, false
}

// ListSummary is the lightweight result of scanning a sessions directory.
type ListSummary struct {
	Meta types.SessionMeta
	Path string
}

// List scans "<cortexHome>/sessions/*.jsonl" and returns each rollout's
// SessionMeta, sorted by creation timestamp descending. Only as much of
// each file as is needed to find the first line is read. Unparseable
// files are skipped with a diagnostic.
func List(cortexHome string, log *slog.Logger) ([]ListSummary, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Join(cortexHome, "sessions")
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	var out []ListSummary
	for _, path := range matches {
		meta, ok := readFirstMeta(path, log)
		if !ok {
			continue
		}
		out = append(out, ListSummary{Meta: meta, Path: path})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Meta.Timestamp.After(out[j].Meta.Timestamp)
	})
	return out, nil
}

func readFirstMeta(path string, log *slog.Logger) (types.SessionMeta, bool) {
	f, err := os.Open(path)
	if err != nil {
		log.Warn("rollout: skipping unreadable session file", "path", path, "error", err)
		return types.SessionMeta{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry types.RolloutEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			log.Warn("rollout: skipping unparseable session file", "path", path, "error", err)
			return types.SessionMeta{}, false
		}
		if entry.Item.Type == types.RolloutSessionMeta && entry.Item.Meta != nil {
			return *entry.Item.Meta, true
		}
		// First non-empty line wasn't a session_meta: malformed file.
		return types.SessionMeta{}, false
	}
	return types.SessionMeta{}, false
}
