package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class across package boundaries.
type ErrorCode string

// Exchange error codes.
const (
	// ErrWorkerStepFailure marks a swarm step that returned an error; the
	// owning worker is considered failed for the rest of the run.
	ErrWorkerStepFailure ErrorCode = "WORKER_STEP_FAILURE"
	// ErrMalformedBatch marks a structurally invalid batch. The receiver
	// rejects the batch without mutating any state.
	ErrMalformedBatch ErrorCode = "MALFORMED_BATCH"
	// ErrInvalidConfig marks an invalid or inconsistent configuration,
	// detected at construction time.
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCallInFlight marks a second asynchronous call issued to a handle
	// that already has one outstanding.
	ErrCallInFlight ErrorCode = "CALL_IN_FLIGHT"
	// ErrHandleClosed marks a call on a closed worker handle.
	ErrHandleClosed ErrorCode = "HANDLE_CLOSED"
	// ErrNoWorkers marks a run with no live workers left to drive.
	ErrNoWorkers ErrorCode = "NO_WORKERS"
)

// Transport error codes.
const (
	// ErrTransport marks a network-level failure between gateway and agent.
	ErrTransport ErrorCode = "TRANSPORT_FAILURE"
	// ErrUnauthorized marks a rejected credential during the gateway
	// handshake.
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Error is the structured error used across the framework. It carries a
// stable code, a human-readable message, and, where known, the worker and
// epoch the failure belongs to.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Epoch     int       `json:"epoch"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.WorkerID != "" {
		msg += fmt.Sprintf(" (worker %s", e.WorkerID)
		if e.Epoch >= 0 {
			msg += fmt.Sprintf(", epoch %d", e.Epoch)
		}
		msg += ")"
	} else if e.Epoch >= 0 {
		msg += fmt.Sprintf(" (epoch %d)", e.Epoch)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a structured error. The epoch is unset until WithEpoch
// is called.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Epoch: -1}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithWorker attaches the id of the worker the failure belongs to.
func (e *Error) WithWorker(id string) *Error {
	e.WorkerID = id
	return e
}

// WithEpoch attaches the exchange epoch the failure occurred at.
func (e *Error) WithEpoch(epoch int) *Error {
	e.Epoch = epoch
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsErrorCode reports whether err carries the given code, unwrapping as
// needed.
func IsErrorCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// GetErrorCode extracts the code from an error, or empty when the error is
// not a structured one.
func GetErrorCode(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
