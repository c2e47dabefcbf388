package analysis

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
)

// Kind classifies why an analysis request failed.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindConfiguration Kind = "ConfigurationError"
	KindUnauthorized  Kind = "Unauthenticated"
	KindModel         Kind = "ModelInvocationFailed"
	KindUnparseable   Kind = "UnparseableResult"
	KindPersistence   Kind = "PersistenceFailed"
)

// Error is the single error type returned by the orchestrator.
// StatusCode and Body are only set for KindModel when the upstream replied.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindModel}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(msg string) *Error { return newError(KindValidation, msg, nil) }

func Configuration(msg string, cause error) *Error {
	return newError(KindConfiguration, msg, cause)
}

func Unauthenticated(msg string, cause error) *Error {
	return newError(KindUnauthorized, msg, cause)
}

func Unparseable(cause error) *Error {
	return newError(KindUnparseable, "model output could not be interpreted", cause)
}

func Persistence(cause error) *Error {
	return newError(KindPersistence, "failed to record analysis", cause)
}

// ModelFailure wraps an upstream error, lifting status and body when present.
func ModelFailure(cause error) *Error {
	e := newError(KindModel, "model invocation failed", cause)
	var up *ai.UpstreamError
	if errors.As(cause, &up) {
		e.StatusCode = up.StatusCode
		e.Body = up.Body
	}
	return e
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ParseError reports model output that no normalization strategy accepted.
type ParseError struct {
	Content string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output: %q", e.Content)
}
