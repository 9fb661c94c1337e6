package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cortexlabs/cortex/internal/tools/fsops"
	"github.com/cortexlabs/cortex/pkg/types"
)

// defaultSkipDirs names directories that are never worth descending into
// for a content or path search: VCS metadata, dependency caches, build
// output.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".hg":          true,
	".svn":         true,
	"dist":         true,
	"build":        true,
}

// MaxSearchMatches bounds how many matches Grep and Glob return, so a
// broad pattern over a large workspace doesn't flood the turn.
const MaxSearchMatches = 500

// GrepTool searches file contents under the workspace for a regular
// expression, read-only.
type GrepTool struct{}

func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) Name() string          { return "grep" }
func (t *GrepTool) Description() string   { return "Search file contents for a regular expression." }
func (t *GrepTool) Category() Category    { return CategorySearch }
func (t *GrepTool) Flags() Flags          { return Flags{DefaultApproval: ApprovalAuto} }

func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Regular expression to search for."},
			"path": {"type": "string", "description": "Directory to search, relative to the workspace (default: workspace root)."},
			"glob": {"type": "string", "description": "Only search files whose name matches this glob (e.g. \"*.go\")."},
			"case_insensitive": {"type": "boolean"}
		},
		"required": ["pattern"]
	}`)
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Pattern         string `json:"pattern"`
		Path            string `json:"path"`
		Glob            string `json:"glob"`
		CaseInsensitive bool   `json:"case_insensitive"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Pattern == "" {
		return ErrorResult("", "pattern is required"), nil
	}

	expr := input.Pattern
	if input.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return ErrorResult("", fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	root := tc.Workspace
	if input.Path != "" {
		resolved, err := (fsops.Resolver{Root: tc.Workspace}).Resolve(input.Path)
		if err != nil {
			return ErrorResult("", err.Error()), nil
		}
		root = resolved
	}

	var matches []grepMatch
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= MaxSearchMatches {
			return fmt.Errorf("limit reached")
		}
		if input.Glob != "" {
			if ok, _ := filepath.Match(input.Glob, d.Name()); !ok {
				return nil
			}
		}
		grepFile(path, re, &matches)
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() && walkErr.Error() != "limit reached" {
		return ErrorResult("", walkErr.Error()), nil
	}

	var b strings.Builder
	for _, m := range matches {
		rel, _ := filepath.Rel(tc.Workspace, m.Path)
		fmt.Fprintf(&b, "%s:%d:%s\n", rel, m.Line, m.Text)
	}
	truncated := len(matches) >= MaxSearchMatches
	return &types.ToolResult{
		Output: b.String(),
		Metadata: map[string]any{
			"match_count": len(matches),
			"truncated":   truncated,
		},
	}, nil
}

func grepFile(path string, re *regexp.Regexp, matches *[]grepMatch) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if isBinary(f) {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if re.MatchString(text) {
			*matches = append(*matches, grepMatch{Path: path, Line: line, Text: text})
			if len(*matches) >= MaxSearchMatches {
				return
			}
		}
	}
}

// isBinary sniffs the first bytes of an already-open file for a NUL
// byte, a cheap and common heuristic for "don't grep this".
func isBinary(f *os.File) bool {
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	defer f.Seek(0, 0)
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
	}
	return false
}

// GlobTool lists workspace files whose path matches a glob pattern,
// supporting a leading "**/" for recursive descent.
type GlobTool struct{}

func NewGlobTool() *GlobTool { return &GlobTool{} }

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern." }
func (t *GlobTool) Category() Category  { return CategorySearch }
func (t *GlobTool) Flags() Flags        { return Flags{DefaultApproval: ApprovalAuto} }

func (t *GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern, e.g. \"**/*.go\" or \"src/*.ts\"."},
			"path": {"type": "string", "description": "Directory to search from, relative to the workspace (default: workspace root)."}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, tc ToolContext, params json.RawMessage) (*types.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult("", fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Pattern == "" {
		return ErrorResult("", "pattern is required"), nil
	}

	root := tc.Workspace
	if input.Path != "" {
		resolved, err := (fsops.Resolver{Root: tc.Workspace}).Resolve(input.Path)
		if err != nil {
			return ErrorResult("", err.Error()), nil
		}
		root = resolved
	}

	recursive := strings.HasPrefix(input.Pattern, "**/")
	suffix := strings.TrimPrefix(input.Pattern, "**/")

	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if !recursive && path != root {
				// Descend only as deep as the pattern has path segments.
				rel, err := filepath.Rel(root, path)
				if err != nil || strings.Count(filepath.ToSlash(rel), "/")+1 > strings.Count(suffix, "/") {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		candidate := rel
		if recursive {
			candidate = filepath.Base(path)
		}
		if ok, _ := filepath.Match(suffix, candidate); ok {
			paths = append(paths, rel)
		}
		return nil
	})
	if walkErr != nil {
		return ErrorResult("", walkErr.Error()), nil
	}

	sort.Strings(paths)
	truncated := false
	if len(paths) > MaxSearchMatches {
		paths = paths[:MaxSearchMatches]
		truncated = true
	}

	return &types.ToolResult{
		Output: strings.Join(paths, "\n"),
		Metadata: map[string]any{
			"match_count": len(paths),
			"truncated":   truncated,
		},
	}, nil
}
