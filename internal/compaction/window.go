package compaction

import "strings"

// DefaultContextWindow is the fallback context window size in tokens when
// a model isn't in modelContextWindows and the caller supplied nothing
// better.
const DefaultContextWindow = 128000

// modelContextWindows maps known model IDs to their context window sizes.
// Folded in from the teacher's internal/context package, which tracked
// this table separately from its compaction logic.
var modelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-sonnet":   200000,
	"claude-3-haiku":    200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,

	"gpt-4":         8192,
	"gpt-4-32k":     32768,
	"gpt-4-turbo":   128000,
	"gpt-4o":        128000,
	"gpt-4o-mini":   128000,
	"gpt-3.5-turbo": 16385,
	"o1":            200000,
	"o1-mini":       128000,
	"o3-mini":       200000,

	"gemini-pro":       32768,
	"gemini-1.5-pro":   2097152,
	"gemini-1.5-flash": 1048576,
	"gemini-2.0-flash": 1048576,
}

// RegisterModelContextWindow records a context window size for a model ID
// not already in the built-in table, so a provider can teach the
// compactor about a model it added.
func RegisterModelContextWindow(modelID string, tokens int) {
	modelContextWindows[modelID] = tokens
}

// ResolveContextWindowTokens looks up modelID's context window, falling
// back to the longest matching prefix and finally to
// DefaultContextWindow.
func ResolveContextWindowTokens(modelID string) int {
	if tokens, ok := modelContextWindows[modelID]; ok {
		return tokens
	}
	bestPrefix := ""
	bestTokens := 0
	for prefix, tokens := range modelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestTokens = prefix, tokens
		}
	}
	if bestPrefix != "" {
		return bestTokens
	}
	return DefaultContextWindow
}
