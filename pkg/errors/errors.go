package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies the failures the checkpoint store can produce
type ErrorType string

const (
	// ErrorTypeNotFound - registering a checkpoint whose file is missing or unreadable
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTransport - any failure of a remote FTP operation
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeCorruptState - unreadable or malformed status file
	ErrorTypeCorruptState ErrorType = "corrupt_state"
	// ErrorTypeDelete - local file removal failure during rotation
	ErrorTypeDelete  ErrorType = "delete"
	ErrorTypeUnknown ErrorType = "unknown"
)

// Error carries the failure kind alongside the message and the wrapped cause
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a typed error around an underlying cause
func Wrap(errorType ErrorType, message string, err error) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

// NotFound builds the error surfaced when a checkpoint file is not available
func NotFound(path string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf("%q is not available", path)}
}

// Transport wraps a failed remote operation
func Transport(message string, err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: message, Err: err}
}

// IsRetryable reports whether an error type should be retried.
// Only transport failures are transient; everything else is a
// local-filesystem or state problem a retry cannot fix.
func IsRetryable(errorType ErrorType) bool {
	return errorType == ErrorTypeTransport
}

// TypeOf extracts the error type, ErrorTypeUnknown for untyped errors
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsNotFound reports whether err is a checkpoint-not-available error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsTransport reports whether err is a remote-operation failure
func IsTransport(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}
