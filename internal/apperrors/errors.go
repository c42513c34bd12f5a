// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	// Job lifecycle failures, one per remote step.
	ErrCreate      = errors.New("create failed")
	ErrStart       = errors.New("start failed")
	ErrFetch       = errors.New("fetch failed")
	ErrDelete      = errors.New("delete failed")
	ErrIdentifier  = errors.New("invalid resource identifier")
	ErrPollTimeout = errors.New("poll timed out")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "image", "name")
	Resource string // Resource kind or URI (e.g., "service", "/api/v1/service/abc/")
	Op       string // Operation that failed (e.g., "tutum.start")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches either (e.g. ErrFetch and context.Canceled).
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Lifecycle wraps a failed remote lifecycle step. sentinel is one of
// ErrCreate, ErrStart, ErrFetch or ErrDelete; resource names the affected
// resource (usually its URI) so orphans can be found from the log.
func Lifecycle(sentinel error, op, resource string, cause error) error {
	msg := fmt.Sprintf("%s: %v", op, cause)
	if resource != "" {
		msg = fmt.Sprintf("%s %s: %v", op, resource, cause)
	}
	return &Error{
		Sentinel: sentinel,
		Message:  msg,
		Resource: resource,
		Op:       op,
		Cause:    cause,
	}
}

// Identifier creates an error for a URI that no identifier can be derived from.
func Identifier(uri string) error {
	return &Error{
		Sentinel: ErrIdentifier,
		Message:  fmt.Sprintf("cannot extract identifier from %q", uri),
		Resource: uri,
	}
}

// PollTimeout creates an error for a resource that never reached the wanted state.
func PollTimeout(resource, want, last string, cause error) error {
	return &Error{
		Sentinel: ErrPollTimeout,
		Message:  fmt.Sprintf("%s did not reach state %q (last state %q)", resource, want, last),
		Resource: resource,
		Cause:    cause,
	}
}
