// Package domain defines the core types, ports, and errors of the bridge.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedOperation is wrapped by a ParseError whose query names an
// operation other than aggregate.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ValidationError indicates a malformed request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ParseError carries every reason a query text was rejected.
type ParseError struct {
	Reasons     []string
	unsupported bool
}

func (e *ParseError) Error() string {
	return "Failed to parse query - " + strings.Join(e.Reasons, ":")
}

// Unwrap exposes ErrUnsupportedOperation when one of the reasons is an
// unknown operation.
func (e *ParseError) Unwrap() error {
	if e.unsupported {
		return ErrUnsupportedOperation
	}
	return nil
}

// Add appends a reason.
func (e *ParseError) Add(format string, args ...interface{}) {
	e.Reasons = append(e.Reasons, fmt.Sprintf(format, args...))
}

// AddUnsupported appends the unknown-operation reason for op.
func (e *ParseError) AddUnsupported(op string) {
	e.unsupported = true
	e.Add("Unknown operation %s, only aggregate supported", op)
}

// Empty reports whether no reason has been recorded.
func (e *ParseError) Empty() bool { return len(e.Reasons) == 0 }

// ConnectionError indicates the datastore could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError indicates the datastore rejected or failed the pipeline.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }

// FormattingError indicates a result document did not have the shape the
// requested formatter needs.
type FormattingError struct {
	Message string
}

func (e *FormattingError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConnection wraps err as a ConnectionError.
func ErrConnection(err error) *ConnectionError {
	return &ConnectionError{Err: err}
}

// ErrExecution wraps err as an ExecutionError.
func ErrExecution(err error) *ExecutionError {
	return &ExecutionError{Err: err}
}

// ErrFormatting creates a FormattingError with a formatted message.
func ErrFormatting(format string, args ...interface{}) *FormattingError {
	return &FormattingError{Message: fmt.Sprintf(format, args...)}
}
