package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/translation"
)

// ErrCancelled reports that processing stopped because the context was
// cancelled. It is not a task failure: callers use IsCancelled to tell
// the two apart and must not alert on it.
var ErrCancelled = errors.New("task processing cancelled")

// RuntimeError is a task-level failure with enough context to find the
// offending task in the source log.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	TaskSeq   int64
	TaskType  ir.TaskType
	EntityKey string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnresolvedDependency indicates a required reference (foreign
	// key, site, parent) has no target row.
	ErrCodeUnresolvedDependency RuntimeErrorCode = "UNRESOLVED_DEPENDENCY"

	// ErrCodeMissingTable indicates the payload lacks a table the task
	// type needs.
	ErrCodeMissingTable RuntimeErrorCode = "MISSING_TABLE"

	// ErrCodeUnknownTaskType indicates a task type the dispatcher does not
	// handle.
	ErrCodeUnknownTaskType RuntimeErrorCode = "UNKNOWN_TASK_TYPE"

	// ErrCodeInvalidPayload indicates a payload that is present but
	// unusable (no GUID, unknown object type, bad path).
	ErrCodeInvalidPayload RuntimeErrorCode = "INVALID_PAYLOAD"

	// ErrCodeDeliveryFailed indicates a synchronous connector rejected
	// the task after it was applied locally.
	ErrCodeDeliveryFailed RuntimeErrorCode = "DELIVERY_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TaskSeq != 0 {
		msg = fmt.Sprintf("%s (seq=%d, type=%s, entity=%s)", msg, e.TaskSeq, e.TaskType, e.EntityKey)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// withTask fills in the task context.
func (e *RuntimeError) withTask(t *ir.Task) *RuntimeError {
	e.TaskSeq = t.Seq
	e.TaskType = t.Type
	e.EntityKey = t.EntityKey()
	return e
}

// IsUnresolvedError returns true if err reports an unresolved required
// dependency, either as a RuntimeError or as the translation helper's
// *translation.UnresolvedError.
func IsUnresolvedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeUnresolvedDependency {
		return true
	}
	return translation.IsUnresolved(err)
}

// IsCancelled returns true if err reports cancellation rather than a
// failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// HasCode returns true if err is a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == code
}

// NewMissingTableError creates a RuntimeError for an absent payload table.
func NewMissingTableError(table string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingTable,
		Message: fmt.Sprintf("payload table %q is missing", table),
		Details: map[string]string{"table": table},
	}
}

// NewUnresolvedError creates a RuntimeError for a reference that has no
// target row.
func NewUnresolvedError(what string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnresolvedDependency,
		Message: what,
		Err:     cause,
	}
}

// NewInvalidPayloadError creates a RuntimeError for an unusable payload.
func NewInvalidPayloadError(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidPayload,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnknownTaskTypeError creates a RuntimeError for an unhandled type.
func NewUnknownTaskTypeError(t ir.TaskType) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownTaskType,
		Message: fmt.Sprintf("no handler for task type %s", t),
	}
}

// classify turns an error from the apply step into a RuntimeError with
// the task context. Cancellation passes through as ErrCancelled.
func classify(t *ir.Task, err error) error {
	if err == nil {
		return nil
	}
	if IsCancelled(err) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		re.withTask(t)
		return err
	}
	var ue *translation.UnresolvedError
	if errors.As(err, &ue) {
		return NewUnresolvedError(ue.Error(), err).withTask(t)
	}
	return err
}
