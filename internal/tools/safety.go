package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// Shell metacharacters and control characters that make a command
// argument unsafe to hand to the process runner, even though argv is
// exec'd directly and never passed through a shell: a model can still
// smuggle a newline into a log line or a null byte into a C string
// downstream, and disallowing them catches that class of mistake before
// the runner ever sees it.
var (
	shellMetachars = regexp.MustCompile(`[;&|` + "`" + `$<>]`)
	controlChars   = regexp.MustCompile(`[\r\n]`)
)

// IsSafeArgument reports whether arg is safe to pass as one element of
// a command's argv. Arguments may start with "-" and contain quotes,
// since those are common in legitimate command lines; it only rejects
// empty values, null bytes, carriage returns and newlines, and shell
// metacharacters. Other control characters such as tabs are allowed.
func IsSafeArgument(arg string) bool {
	if arg == "" {
		return false
	}
	if strings.ContainsRune(arg, 0) {
		return false
	}
	return !controlChars.MatchString(arg) && !shellMetachars.MatchString(arg)
}

// IsSafeExecutableName reports whether name is safe to use as argv[0].
// It additionally rejects values starting with "-", which would
// otherwise be read as a flag by many exec implementations.
func IsSafeExecutableName(name string) bool {
	if !IsSafeArgument(name) {
		return false
	}
	return !strings.HasPrefix(strings.TrimSpace(name), "-")
}

// ArgumentError names the argv index and value that failed validation.
type ArgumentError struct {
	Index int
	Arg   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d (%q) contains a null byte, control character, or shell metacharacter", e.Index, e.Arg)
}

// ValidateArgv checks every element of argv, requiring argv[0] to also
// pass IsSafeExecutableName.
func ValidateArgv(argv []string) error {
	for i, arg := range argv {
		safe := IsSafeArgument(arg)
		if i == 0 {
			safe = IsSafeExecutableName(arg)
		}
		if !safe {
			return &ArgumentError{Index: i, Arg: arg}
		}
	}
	return nil
}
