package errors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind classifies a workflow error. Kinds are string-based so they serialize
// naturally into API responses.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindForbidden    Kind = "FORBIDDEN"
	KindExpired      Kind = "EXPIRED"
	KindInvalidState Kind = "INVALID_STATE"
	KindValidation   Kind = "VALIDATION"
	KindInternal     Kind = "INTERNAL"
)

var (
	// ErrNotFound is returned when an entity is missing.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrConflict is returned when an invariant would be violated, e.g. an
	// active review request already exists for the document.
	ErrConflict = &Error{Kind: KindConflict, Message: "conflict"}
	// ErrForbidden is returned when the actor may not act on the entity.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
	// ErrExpired is returned when a deadline has passed.
	ErrExpired = &Error{Kind: KindExpired, Message: "expired"}
	// ErrInvalidState is returned when an action is illegal in the current
	// status, including lost races.
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
	// ErrValidation is returned for malformed input.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
)

// Error is a classified error carrying the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of op and message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newKind(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...interface{}) error {
	return newKind(KindNotFound, op, format, args...)
}

func Conflict(op, format string, args ...interface{}) error {
	return newKind(KindConflict, op, format, args...)
}

func Forbidden(op, format string, args ...interface{}) error {
	return newKind(KindForbidden, op, format, args...)
}

func Expired(op, format string, args ...interface{}) error {
	return newKind(KindExpired, op, format, args...)
}

func InvalidState(op, format string, args ...interface{}) error {
	return newKind(KindInvalidState, op, format, args...)
}

func Validation(op, format string, args ...interface{}) error {
	return newKind(KindValidation, op, format, args...)
}

// Internal wraps an unexpected failure (store, network) under op.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

// LogWithError logs the error with context and returns a wrapped error. Use this for standardized error logging across services.
func LogWithError(ctx context.Context, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		if ctx != nil {
			if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
		}
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}

type requestIDKey struct{}

// RequestIDKey is the context key under which the HTTP request logger stores
// the request id.
var RequestIDKey = requestIDKey{}
