// Package errors provides coded domain errors shared across lnbridge.
//
// Every error that crosses a package boundary carries a Code so callers can
// branch on classification without string matching. Errors raised from a
// daemon RPC reply additionally preserve the daemon's numeric error code.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeTransport marks fatal connection-level failures on the RPC socket.
	CodeTransport Code = "transport_error"
	// CodeUnavailable marks transient daemon conditions (no route, timeout).
	// Callers may retry.
	CodeUnavailable Code = "service_unavailable"
	// CodeServiceFailed marks all other daemon or application failures,
	// including unknown state values. Not retryable without investigation.
	CodeServiceFailed Code = "service_failed"
	// CodeTranslation marks a single malformed broker message.
	CodeTranslation Code = "translation_error"
	// CodePolicy marks amounts or expiries outside configured bounds,
	// raised before any daemon call.
	CodePolicy Code = "policy_violation"

	CodeValidation Code = "validation_error"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal_error"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Daemon  int // daemon numeric error code, 0 when not RPC-originated
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDaemonCode returns a copy of e carrying the daemon's numeric code.
func (e *Error) WithDaemonCode(code int) *Error {
	out := *e
	out.Daemon = code
	return &out
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// GetCode returns the code of the outermost domain error in err's chain,
// or CodeInternal when err is not a domain error.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DaemonCode returns the daemon's numeric error code carried by err,
// or 0 when the error did not originate from an RPC reply.
func DaemonCode(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Daemon
	}
	return 0
}
