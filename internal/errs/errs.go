// Package errs implements the closed error-kind taxonomy shared by the
// session engine, grounded on the sentinel-error-plus-wrapping idiom
// used across the teacher's internal/sessions/write_lock.go and
// internal/tools/policy/approval.go (errors.New sentinels, fmt.Errorf
// with %w for context).
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the closed set of error categories the engine
// reports. Every error that crosses a component boundary is classified
// into exactly one Kind.
type Kind string

const (
	KindConfig       Kind = "config"
	KindAuth         Kind = "auth"
	KindNetwork      Kind = "network"
	KindProvider     Kind = "provider"
	KindModel        Kind = "model"
	KindTool         Kind = "tool"
	KindSandbox      Kind = "sandbox"
	KindIO           Kind = "io"
	KindCancelled    Kind = "cancelled"
	KindInternal     Kind = "internal"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindRateLimit    Kind = "rate_limit"
	KindTimeout      Kind = "timeout"
)

// Error is a Kind-tagged error. RetryAfter is only meaningful for
// KindRateLimit.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a Kind-tagged error wrapping err (which may be nil).
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// RateLimited builds a KindRateLimit error carrying a retry-after hint.
func RateLimited(message string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimit, Message: message, RetryAfter: retryAfter, Err: err}
}

// As reports whether err (or something it wraps) is an *Error, returning
// it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Retriable reports whether an error's Kind is one the turn loop should
// retry with backoff: network, timeout, rate limit, or provider
// (backend-unavailable) errors.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRateLimit, KindProvider:
		return true
	default:
		return false
	}
}
