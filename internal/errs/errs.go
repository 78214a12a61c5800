// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package errs

import (
	"fmt"
	"log"
)

// Kind is one of the semantic error kinds from the engine's error design.
// These are deliberately few and stable: every boundary normalizes to one
// of them before re-raising, so no caller has to pattern-match on a growing
// zoo of concrete error types.
type Kind string

const (
	Transient       Kind = "TRANSIENT"
	Timeout         Kind = "TIMEOUT"
	NotAuthorized   Kind = "NOT_AUTHORIZED"
	NotFound        Kind = "NOT_FOUND"
	Validation      Kind = "VALIDATION"
	SchemaViolation Kind = "SCHEMA_VIOLATION"
	ToolExecution   Kind = "TOOL_EXECUTION"
	Fatal           Kind = "FATAL"
)

// Error is the engine's normalized error shape. Stage records which
// component raised it, for trace/log attribution; it is never shown to end
// users.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Field   string // set for Validation errors
	Err     error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Stage, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the boundary that owns the handle should retry
// this error with backoff before surfacing it further.
func (e *Error) Retryable() bool { return e.Kind == Transient }

func New(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, stage string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(stage, field, format string, args ...any) *Error {
	return &Error{Kind: Validation, Stage: stage, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotAuthorizedf(stage, format string, args ...any) *Error {
	return &Error{Kind: NotAuthorized, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(stage, format string, args ...any) *Error {
	return &Error{Kind: NotFound, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Transientf(stage string, err error, format string, args ...any) *Error {
	return &Error{Kind: Transient, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

func Timeoutf(stage, format string, args ...any) *Error {
	return &Error{Kind: Timeout, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func Fatalf(stage string, err error, format string, args ...any) *Error {
	return &Error{Kind: Fatal, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

// As reports whether err (or something it wraps) is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}

// KindOf returns the Kind of err, or Fatal if err is not a classified Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Fatal
}

// Log writes a one-line, stage-tagged record of err. Full detail is logged
// internally; NotAuthorized messages shown to callers must never carry
// this level of detail (see UserMessage).
func Log(err error) {
	if e, ok := As(err); ok {
		log.Printf("[%s] %s: %s", e.Kind, e.Stage, e.Message)
		return
	}
	log.Printf("[UNCLASSIFIED] %v", err)
}

// UserMessage returns a terse, non-leaking string safe to return to a
// caller across a request boundary.
func UserMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "an internal error occurred"
	}
	switch e.Kind {
	case NotAuthorized:
		return "you do not have access to this resource"
	case NotFound:
		return "the requested resource was not found"
	case Validation:
		return fmt.Sprintf("invalid input: %s", e.Message)
	case Timeout:
		return "the request timed out"
	default:
		return "an internal error occurred"
	}
}
