package procrunner

import (
	"os"
	"strings"
)

// sensitivePatterns are the uppercased substrings that strip a variable
// from a child process's environment.
var sensitivePatterns = []string{"KEY", "SECRET", "TOKEN", "PASSWORD", "CREDENTIAL", "PRIVATE"}

// allowlist survives the sensitive-pattern filter even if it matches.
var allowlist = map[string]bool{
	"CORTEX_AUTH_TOKEN": true,
	"PATH":              true,
	"HOME":              true,
	"USER":              true,
	"SHELL":             true,
}

// mandatoryDefaults are overlaid onto the filtered environment before
// caller-supplied overrides, to keep child processes non-interactive.
var mandatoryDefaults = map[string]string{
	"CI":                "true",
	"DEBIAN_FRONTEND":   "noninteractive",
	"NO_COLOR":          "1",
	"TERM":              "dumb",
	"APT_LISTCHANGES_FRONTEND": "none",
}

// isSensitiveName reports whether name should be filtered from a child
// process environment, honoring the allowlist.
func isSensitiveName(name string) bool {
	if allowlist[name] {
		return false
	}
	upper := strings.ToUpper(name)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// buildEnv constructs the filtered, overlaid environment for a child
// process: inherit parent env minus sensitive vars, then mandatory
// defaults, then caller overrides.
func buildEnv(overrides map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isSensitiveName(name) {
			continue
		}
		merged[name] = value
	}
	for k, v := range mandatoryDefaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
