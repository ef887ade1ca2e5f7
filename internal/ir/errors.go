package ir

import (
	"errors"
	"fmt"
)

// Error is a pgproxy error with a category code.
//
// Codes:
//   - CONFIGURATION: missing connection, or a second live handle
//   - DISABLED_FUNCTION: the function was refused by the sync policy
//   - UNKNOWN_FUNCTION: the name is not part of the proxy surface
//   - DESTROYED: the handle was already destroyed
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Function names the affected function, if any.
	Function string
}

// ErrorCode categorizes pgproxy errors.
type ErrorCode string

const (
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION"
	ErrCodeDisabledFunction ErrorCode = "DISABLED_FUNCTION"
	ErrCodeUnknownFunction  ErrorCode = "UNKNOWN_FUNCTION"
	ErrCodeDestroyed        ErrorCode = "DESTROYED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (function=%s)", e.Code, e.Message, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConfigurationError creates a CONFIGURATION error.
func NewConfigurationError(message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message}
}

// NewDisabledError creates the error returned by every call to a disabled
// function.
func NewDisabledError(function string) *Error {
	return &Error{
		Code:     ErrCodeDisabledFunction,
		Message:  fmt.Sprintf("the function with name %q has been disabled because it is out of sync with the database", function),
		Function: function,
	}
}

// NewUnknownFunctionError creates an UNKNOWN_FUNCTION error.
func NewUnknownFunctionError(function string) *Error {
	return &Error{
		Code:     ErrCodeUnknownFunction,
		Message:  "no such function on this proxy",
		Function: function,
	}
}

// NewDestroyedError creates a DESTROYED error.
func NewDestroyedError(function string) *Error {
	return &Error{
		Code:     ErrCodeDestroyed,
		Message:  "proxy has been destroyed",
		Function: function,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigurationError reports whether err is a CONFIGURATION error.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsDisabledError reports whether err is a DISABLED_FUNCTION error.
func IsDisabledError(err error) bool { return hasCode(err, ErrCodeDisabledFunction) }

// IsUnknownFunctionError reports whether err is an UNKNOWN_FUNCTION error.
func IsUnknownFunctionError(err error) bool { return hasCode(err, ErrCodeUnknownFunction) }

// IsDestroyedError reports whether err is a DESTROYED error.
func IsDestroyedError(err error) bool { return hasCode(err, ErrCodeDestroyed) }

// RemoteError wraps a failure from the remote connection. The driver error is
// kept intact and reachable through errors.As / errors.Is.
type RemoteError struct {
	Op       string // "fetch", "create", "update", "purge", "call"
	Function string
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("remote %s %s: %v", e.Op, e.Function, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err came from the remote connection.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
