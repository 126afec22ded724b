package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all scheduler failure modes
type ErrorCode string

const (
	// GraphInconsistency indicates a query against an artifact the graph does not know
	GraphInconsistency ErrorCode = "GRAPH_INCONSISTENCY"
	// PlanningStale indicates the graph mutated after a report was planned
	PlanningStale ErrorCode = "PLANNING_STALE"
	// WaveVerificationFailure indicates a wave member failed regeneration or verification
	WaveVerificationFailure ErrorCode = "WAVE_VERIFICATION_FAILURE"
	// InvalidTransition indicates a command that the current execution phase does not accept
	InvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ReentrantExecution indicates a report already has an active execution
	ReentrantExecution ErrorCode = "REENTRANT_EXECUTION"
	// ReportNotFound indicates an unknown report id
	ReportNotFound ErrorCode = "REPORT_NOT_FOUND"
	// ExecutionNotFound indicates an unknown execution id
	ExecutionNotFound ErrorCode = "EXECUTION_NOT_FOUND"
	// InvalidArgument indicates malformed input
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// StoreError indicates the history store failed
	StoreError ErrorCode = "STORE_ERROR"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// SchedulerError represents a scheduler error with a stable code
type SchedulerError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new SchedulerError
func New(code ErrorCode, message string, cause error) *SchedulerError {
	return &SchedulerError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a SchedulerError without a cause and a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *SchedulerError {
	return &SchedulerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *SchedulerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SchedulerError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a SchedulerError with the same code.
func (e *SchedulerError) Is(target error) bool {
	t, ok := target.(*SchedulerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *SchedulerError) WithDetails(details interface{}) *SchedulerError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first SchedulerError in err's chain,
// or InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &SchedulerError{Code: code})
}
