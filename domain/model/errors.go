package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkspaceNotFound     = errors.New("workspace not found")
	ErrWorkspaceInvalid      = errors.New("workspace invalid")
	ErrWorkspaceSessionBound = errors.New("workspace has a bound session")
	ErrInvalidTransition     = errors.New("invalid workspace status transition")
	ErrCompanyNotFound       = errors.New("company not found")
	ErrCompanyInvalid        = errors.New("company invalid")
	ErrPatchExists           = errors.New("patch already recorded")
	ErrPatchAlreadyUndone    = errors.New("patch already undone")
)

// ErrorKind is a machine-readable category of a command pipeline failure.
type ErrorKind string

const (
	KindWorkspaceNotReady          ErrorKind = "WorkspaceNotReady"
	KindCapabilityNotAllowed       ErrorKind = "CapabilityNotAllowed"
	KindInsufficientCredits        ErrorKind = "InsufficientCredits"
	KindCrossEngineCommandRejected ErrorKind = "CrossEngineCommandRejected"
	KindUnsupportedEngine          ErrorKind = "UnsupportedEngine"
	KindSchemaValidationFailed     ErrorKind = "SchemaValidationFailed"
	KindTooManyOperations          ErrorKind = "TooManyOperations"
	KindSessionStartFailed         ErrorKind = "SessionStartFailed"
	KindBackendError               ErrorKind = "BackendError"
	KindUndoUnsupported            ErrorKind = "UndoUnsupported"
	KindPatchNotFound              ErrorKind = "PatchNotFound"
	KindUndoFailed                 ErrorKind = "UndoFailed"
)

// HTTPStatus maps the kind to the status code used by the HTTP surface.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindWorkspaceNotReady:
		return http.StatusConflict
	case KindCapabilityNotAllowed:
		return http.StatusForbidden
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindCrossEngineCommandRejected, KindSchemaValidationFailed, KindTooManyOperations:
		return http.StatusUnprocessableEntity
	case KindUnsupportedEngine, KindUndoUnsupported:
		return http.StatusNotImplemented
	case KindPatchNotFound:
		return http.StatusNotFound
	case KindSessionStartFailed:
		return http.StatusServiceUnavailable
	case KindBackendError, KindUndoFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a categorized pipeline error. Details carries the structured
// context a caller needs to act (required vs available credits, the
// detected engine, the operation limit that was exceeded).
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error

	// Retryable is set for transient infrastructure failures that happened
	// before the backend could have observed the request.
	Retryable bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality against the bare sentinels below, so callers can
// write errors.Is(err, model.ErrInsufficientCredits).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// WithDetail returns e after setting a detail key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// NewError creates a categorized error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a categorized error wrapping err.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Kind sentinels for errors.Is.
var (
	ErrWorkspaceNotReady          = &Error{Kind: KindWorkspaceNotReady}
	ErrCapabilityNotAllowed       = &Error{Kind: KindCapabilityNotAllowed}
	ErrInsufficientCredits        = &Error{Kind: KindInsufficientCredits}
	ErrCrossEngineCommandRejected = &Error{Kind: KindCrossEngineCommandRejected}
	ErrUnsupportedEngine          = &Error{Kind: KindUnsupportedEngine}
	ErrSchemaValidationFailed     = &Error{Kind: KindSchemaValidationFailed}
	ErrTooManyOperations          = &Error{Kind: KindTooManyOperations}
	ErrSessionStartFailed         = &Error{Kind: KindSessionStartFailed}
	ErrBackend                    = &Error{Kind: KindBackendError}
	ErrUndoUnsupported            = &Error{Kind: KindUndoUnsupported}
	ErrPatchNotFound              = &Error{Kind: KindPatchNotFound}
	ErrUndoFailed                 = &Error{Kind: KindUndoFailed}
)

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient failure safe to retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
