// Package apperr provides structured error handling for the flow engine.
//
// It defines a standard AppError type carrying an error code, a
// human-readable message, and an optional wrapped cause, plus
// constructors for the error kinds spec'd for this system (see
// spec.md §7): configuration, connection, transient per-message,
// consumer-stream, and shutdown-timeout errors.
package apperr

import "fmt"

// Code is a stable, machine-checkable error identifier.
type Code string

const (
	CodeConfig          Code = "FLOW_CONFIG_INVALID"
	CodeConnection      Code = "FLOW_CONNECTION_FAILED"
	CodeTransient       Code = "FLOW_TRANSIENT"
	CodeConsumerStream  Code = "FLOW_CONSUMER_STREAM"
	CodeShutdownTimeout Code = "FLOW_SHUTDOWN_TIMEOUT"
	CodeNotFound        Code = "FLOW_NOT_FOUND"
	CodeConflict        Code = "FLOW_CONFLICT"
	CodeInternal        Code = "FLOW_INTERNAL"
)

// AppError is the error type returned across package boundaries in this module.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code, message, and wrapped cause.
func New(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrap attaches a message to err under CodeInternal, preserving the chain.
func Wrap(err error, message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Config creates a configuration error (fatal at flow construction).
func Config(message string, err error) *AppError {
	return New(CodeConfig, message, err)
}

// Connection creates a connection error (fatal to the owning flow).
func Connection(message string, err error) *AppError {
	return New(CodeConnection, message, err)
}

// Transient creates a per-message error (recovered locally, no retry).
func Transient(message string, err error) *AppError {
	return New(CodeTransient, message, err)
}

// ConsumerStream creates an error raised from a source's consume stream.
func ConsumerStream(message string, err error) *AppError {
	return New(CodeConsumerStream, message, err)
}

// ShutdownTimeout creates an error for a task that failed to join in time.
func ShutdownTimeout(message string, err error) *AppError {
	return New(CodeShutdownTimeout, message, err)
}

// NotFound creates a not-found error.
func NotFound(message string, err error) *AppError {
	return New(CodeNotFound, message, err)
}

// Conflict creates a conflict error (e.g. circuit open).
func Conflict(message string, err error) *AppError {
	return New(CodeConflict, message, err)
}
