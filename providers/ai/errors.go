package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies an [Error]. Kinds are stable strings; they are also
// used as the "code" of error-json tool outputs.
type ErrorKind string

const (
	KindInvalidArgument         ErrorKind = "InvalidArgument"
	KindInvalidPrompt           ErrorKind = "InvalidPrompt"
	KindNoSuchModel             ErrorKind = "NoSuchModel"
	KindAuthFailed              ErrorKind = "AuthFailed"
	KindRateLimited             ErrorKind = "RateLimited"
	KindProviderTransient       ErrorKind = "ProviderTransient"
	KindInvalidRequest          ErrorKind = "InvalidRequest"
	KindEmptyResponseBody       ErrorKind = "EmptyResponseBody"
	KindTruncatedStream         ErrorKind = "TruncatedStream"
	KindSchemaViolation         ErrorKind = "SchemaViolation"
	KindInvalidStreamPart       ErrorKind = "InvalidStreamPart"
	KindInvalidToolInput        ErrorKind = "InvalidToolInput"
	KindNoSuchTool              ErrorKind = "NoSuchTool"
	KindUnsupportedModelVersion ErrorKind = "UnsupportedModelVersion"
	KindCancelled               ErrorKind = "Cancelled"

	// KindToolExecution marks a failure raised by a tool executor.
	KindToolExecution ErrorKind = "ToolExecution"
	// KindExecutionDenied marks a tool call whose approval was denied.
	KindExecutionDenied ErrorKind = "ExecutionDenied"
)

// Sentinels usable with errors.Is. Matching is by kind only.
var (
	ErrInvalidArgument         = &Error{Kind: KindInvalidArgument}
	ErrInvalidPrompt           = &Error{Kind: KindInvalidPrompt}
	ErrNoSuchModel             = &Error{Kind: KindNoSuchModel}
	ErrAuthFailed              = &Error{Kind: KindAuthFailed}
	ErrRateLimited             = &Error{Kind: KindRateLimited}
	ErrProviderTransient       = &Error{Kind: KindProviderTransient}
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest}
	ErrEmptyResponseBody       = &Error{Kind: KindEmptyResponseBody}
	ErrTruncatedStream         = &Error{Kind: KindTruncatedStream}
	ErrSchemaViolation         = &Error{Kind: KindSchemaViolation}
	ErrInvalidStreamPart       = &Error{Kind: KindInvalidStreamPart}
	ErrInvalidToolInput        = &Error{Kind: KindInvalidToolInput}
	ErrNoSuchTool              = &Error{Kind: KindNoSuchTool}
	ErrUnsupportedModelVersion = &Error{Kind: KindUnsupportedModelVersion}
	ErrCancelled               = &Error{Kind: KindCancelled}
	ErrToolExecution           = &Error{Kind: KindToolExecution}
	ErrExecutionDenied         = &Error{Kind: KindExecutionDenied}
)

// Error is the single error type surfaced by adapters, the step executor and
// the agent loop. Provider, StatusCode and Body are set for HTTP failures.
type Error struct {
	Kind       ErrorKind
	Message    string
	Provider   string
	StatusCode int
	// Retryable is a hint for callers; nothing in this module retries.
	Retryable  bool
	RetryAfter time.Duration
	Body       string
	Cause      error
}

// NewError builds an Error of the given kind with a formatted message.
// RateLimited and ProviderTransient errors are marked retryable.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind == KindRateLimited || kind == KindProviderTransient,
	}
}

// WrapError builds an Error of the given kind around cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	e := NewError(kind, format, args...)
	e.Cause = cause
	return e
}

// NewCancelled wraps a context error so that both errors.Is(err, ErrCancelled)
// and errors.Is(err, context.Canceled) hold.
func NewCancelled(cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	return &Error{Kind: KindCancelled, Message: "operation cancelled", Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && (e.Message == "" || !strings.Contains(e.Message, e.Cause.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality against sentinel errors (errors with no message).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err. Context errors map to KindCancelled;
// errors outside the taxonomy return the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return ""
}

// IsRetryable reports the retryable hint carried by err.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// RetryAfter returns the provider supplied retry delay, zero when absent.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// AsError converts any error into an *Error, preserving existing ones.
// Unclassified errors become fallback kind.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelled(err)
	}
	return &Error{Kind: fallback, Message: err.Error(), Cause: err}
}
