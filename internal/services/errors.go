package services

import (
	"errors"
	"fmt"

	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/validation"
)

// Error codes returned by the services.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidStage = "INVALID_STAGE"
	CodeConflict     = "CONFLICT"
	CodeStaleState   = "STALE_STATE"
	CodeValidation   = "VALIDATION_ERROR"
)

// Error is the structured error returned by every service operation that
// fails for a reason the caller can act on. Two Errors match under errors.Is
// when their codes are equal, so the sentinels below can be used directly.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// Sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidStage = &Error{Code: CodeInvalidStage, Message: "invalid stage"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrStaleState   = &Error{Code: CodeStaleState, Message: "stale state"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
)

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(kind, id string) *Error {
	return newError(CodeNotFound, "%s %q not found", kind, id).
		WithDetails(map[string]any{"id": id})
}

// fromValidation converts a validation failure, keeping its violations.
func fromValidation(err error) error {
	var verr *validation.Error
	if errors.As(err, &verr) {
		e := newError(CodeValidation, "%s", verr.Message).WithCause(err)
		if len(verr.Violations) > 0 {
			e.Details = map[string]any{"violations": verr.Violations}
		}
		return e
	}
	return newError(CodeValidation, "%s", err.Error()).WithCause(err)
}

// fromRepository maps storage errors for a record of kind and id onto the
// service taxonomy. Unknown errors are wrapped and returned unchanged in kind.
func fromRepository(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound(kind, id).WithCause(err)
	case errors.Is(err, repository.ErrStaleState):
		return newError(CodeStaleState, "%s %q changed stage concurrently", kind, id).WithCause(err)
	case errors.Is(err, repository.ErrCompleted):
		return newError(CodeConflict, "%s %q is already completed", kind, id).WithCause(err)
	case errors.Is(err, repository.ErrReferenced):
		return newError(CodeConflict, "%s %q is referenced by workflow instances", kind, id).WithCause(err)
	default:
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
}
