// Package apierr provides the error taxonomy shared across the cluster
// monitor core (spec §7). Errors are typed so HTTP handlers and callers can
// branch on category without string matching, instead of ad-hoc sentinel
// values scattered per package.
package apierr

import (
	"fmt"
	"net/http"
)

// Code identifies one of the error categories in §7.
type Code string

const (
	// CodeTransientBackend marks a recoverable network glitch or broken
	// connection. The Pool Substrate handles these locally.
	CodeTransientBackend Code = "TRANSIENT_BACKEND"

	// CodeQuery marks SQL syntax or schema mismatch errors.
	CodeQuery Code = "QUERY_ERROR"

	// CodeRuleParse marks a malformed rule expression or for_duration.
	CodeRuleParse Code = "RULE_PARSE_ERROR"

	// CodePacketFormat marks a BMC packet with a bad header/tail/length.
	CodePacketFormat Code = "PACKET_FORMAT_ERROR"

	// CodeConsistency marks resolving an event with no matching open row.
	CodeConsistency Code = "CONSISTENCY_ERROR"

	// CodeConfig marks unparseable configuration discovered at init.
	CodeConfig Code = "CONFIG_ERROR"

	// CodePoolExhausted marks an acquire() that timed out waiting for a
	// connection.
	CodePoolExhausted Code = "POOL_EXHAUSTED"

	// CodePoolUnavailable marks an acquire()/send on a pool that has not
	// been initialized yet, or has been shut down.
	CodePoolUnavailable Code = "POOL_UNAVAILABLE"

	// CodeShutdownInProgress marks a caller that raced an in-flight
	// shutdown.
	CodeShutdownInProgress Code = "SHUTDOWN_IN_PROGRESS"

	// CodeNotFound marks a missing rule/event lookup.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidInput marks a malformed HTTP request body or query
	// parameter.
	CodeInvalidInput Code = "INVALID_INPUT"
)

// httpStatus maps each code to the HTTP status the core's handlers should
// respond with (spec §7 "Propagation policy").
var httpStatus = map[Code]int{
	CodeTransientBackend:   http.StatusInternalServerError,
	CodeQuery:              http.StatusInternalServerError,
	CodeRuleParse:          http.StatusBadRequest,
	CodePacketFormat:       http.StatusBadRequest,
	CodeConsistency:        http.StatusInternalServerError,
	CodeConfig:             http.StatusInternalServerError,
	CodePoolExhausted:      http.StatusServiceUnavailable,
	CodePoolUnavailable:    http.StatusServiceUnavailable,
	CodeShutdownInProgress: http.StatusServiceUnavailable,
	CodeNotFound:           http.StatusNotFound,
	CodeInvalidInput:       http.StatusBadRequest,
}

// Error is a typed, wrappable error carrying its category and HTTP status.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code the HTTP layer should respond with.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error wrapping an existing cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// StatusFor extracts an HTTP status for any error, defaulting to 500 for
// errors outside this taxonomy.
func StatusFor(err error) int {
	var apiErr *Error
	if e, ok := err.(*Error); ok {
		apiErr = e
		return apiErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
