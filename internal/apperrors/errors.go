// Package apperrors defines the error taxonomy shared by every component of
// the reviewer: config loading, trust checks, budget enforcement, agent
// execution, forge network calls, and input validation all wrap their
// failures in one of the six categories below so callers can branch on
// category instead of string-matching messages.
package apperrors

import (
	"errors"
	"fmt"
)

// Category discriminates the six error kinds spec.md's error handling
// section names.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryTrust      Category = "trust"
	CategoryBudget     Category = "budget"
	CategoryAgent      Category = "agent"
	CategoryNetwork    Category = "network"
	CategoryValidation Category = "validation"
)

// Error is the concrete error type produced by every package in this
// module. It wraps an underlying cause and records whether retrying the
// operation that produced it could plausibly succeed.
type Error struct {
	Category  Category
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies netretry.Retryable.
func (e *Error) IsRetryable() bool { return e.Retryable }

// IsRetryable reports whether the operation that produced err may succeed
// on a later attempt.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Is lets errors.Is(err, &Error{Category: CategoryConfig}) match any
// *Error of that category, independent of message or cause; a target
// with a Message must also match the message exactly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Cause == nil {
		return e.Category == t.Category
	}
	return e.Category == t.Category && e.Message == t.Message
}

func newf(category Category, retryable bool, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

func wrap(category Category, retryable bool, cause error, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...), Retryable: retryable, Cause: cause}
}

// Config reports an error in configuration resolution: a missing
// credential, an unresolvable provider, a malformed YAML value, or a
// rejected legacy environment variable. Never retryable — the operator
// must fix the configuration.
func Config(format string, args ...any) *Error { return newf(CategoryConfig, false, format, args...) }

// WrapConfig is Config with an underlying cause attached.
func WrapConfig(cause error, format string, args ...any) *Error {
	return wrap(CategoryConfig, false, cause, format, args...)
}

// Trust reports a failed trust/fork check: the PR's head repository or
// build source differs from the base/target, or the PR is a draft (drafts
// are always skipped). Never retryable.
func Trust(format string, args ...any) *Error { return newf(CategoryTrust, false, format, args...) }

// Budget reports that a configured token or USD ceiling (per-PR or
// monthly) has been reached. Never retryable within the same run.
func Budget(format string, args ...any) *Error { return newf(CategoryBudget, false, format, args...) }

// Agent reports a failure inside a single agent's execution: a timeout, a
// non-zero subprocess exit, or a provider error surfaced from the LLM
// client. Agent errors degrade the pass (partial findings kept) rather
// than aborting the run, so retryability here only describes whether the
// orchestrator may attempt the same agent again in a later pass.
func Agent(retryable bool, format string, args ...any) *Error {
	return newf(CategoryAgent, retryable, format, args...)
}

// WrapAgent is Agent with an underlying cause attached.
func WrapAgent(cause error, retryable bool, format string, args ...any) *Error {
	return wrap(CategoryAgent, retryable, cause, format, args...)
}

// Network reports a transport-level failure talking to a forge or LLM
// provider. Retryability is whatever the caller passes; netretry.ShouldRetry
// reads it back through IsRetryable.
func Network(retryable bool, format string, args ...any) *Error {
	return newf(CategoryNetwork, retryable, format, args...)
}

// WrapNetwork is Network with an underlying cause attached.
func WrapNetwork(cause error, retryable bool, format string, args ...any) *Error {
	return wrap(CategoryNetwork, retryable, cause, format, args...)
}

// Validation reports malformed input: an unparseable diff, a finding
// referencing a file outside the diff, a marker that fails to decode.
// Never retryable.
func Validation(format string, args ...any) *Error {
	return newf(CategoryValidation, false, format, args...)
}

// WrapValidation is Validation with an underlying cause attached.
func WrapValidation(cause error, format string, args ...any) *Error {
	return wrap(CategoryValidation, false, cause, format, args...)
}
