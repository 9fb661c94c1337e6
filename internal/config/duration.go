package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can write "30s"/"2m"
// instead of a raw nanosecond count — yaml.v3 has no built-in support
// for decoding a string into time.Duration's underlying int64 kind.
type Duration time.Duration

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string ("30s") or a plain
// number of nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var asString string
	if err := unmarshal(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var asNanos int64
	if err := unmarshal(&asNanos); err != nil {
		return fmt.Errorf("config: duration must be a string or a number of nanoseconds")
	}
	*d = Duration(asNanos)
	return nil
}

// MarshalYAML renders the duration back out as a string, so a
// loaded-then-resaved config stays human readable.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
