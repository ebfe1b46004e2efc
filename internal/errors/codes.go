// Package errors defines the error taxonomy shared by the write and
// read paths, plus the HTTP status mapping used by the API layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure surfaced to callers
type Code string

const (
	// Write path
	CodeBufferFull   Code = "BUFFER_FULL"
	CodeFlushFailed  Code = "FLUSH_FAILED"
	CodeUpsertFailed Code = "UPSERT_FAILED"

	// Read path
	CodeNoEligibleReplica Code = "NO_ELIGIBLE_REPLICA"
	CodeRouteTimeout      Code = "ROUTE_TIMEOUT"
	CodeBreakerOpen       Code = "BREAKER_OPEN"

	// General
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

// Error is a structured error carrying a taxonomy code and optional
// context. All errors crossing a package boundary in this repo are
// either an *Error or wrap one.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// Newf creates an Error with a formatted message and no cause
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithDetail attaches a detail field to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// CodeOf extracts the taxonomy code from an error chain.
// Unclassified errors report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a taxonomy code to its HTTP response status
func HTTPStatus(code Code) int {
	switch code {
	case CodeBufferFull, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpsertFailed:
		return http.StatusBadGateway
	case CodeNoEligibleReplica, CodeBreakerOpen, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRouteTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for the common cases

func BufferFull(depth, capacity int) *Error {
	return Newf(CodeBufferFull, "staging buffer full: %d/%d events", depth, capacity).
		WithDetail("depth", depth).
		WithDetail("capacity", capacity)
}

func UpsertFailed(tenantID, entityID string, cause error) *Error {
	return New(CodeUpsertFailed, fmt.Sprintf("hot upsert failed for %s/%s", tenantID, entityID), cause).
		WithDetail("tenant_id", tenantID).
		WithDetail("entity_id", entityID)
}

func NoEligibleReplica(candidates int) *Error {
	return Newf(CodeNoEligibleReplica, "no eligible replica among %d candidates and primary fallback disabled", candidates).
		WithDetail("candidates", candidates)
}

func RouteTimeout(source string, cause error) *Error {
	return New(CodeRouteTimeout, fmt.Sprintf("query timed out on %s", source), cause).
		WithDetail("source", source)
}

func BreakerOpen(replicaID string) *Error {
	return Newf(CodeBreakerOpen, "circuit breaker open for replica %s", replicaID).
		WithDetail("replica_id", replicaID)
}

func InvalidArgument(message string) *Error {
	return Newf(CodeInvalidArgument, "%s", message)
}

func Internal(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

func Unavailable(message string, cause error) *Error {
	return New(CodeUnavailable, message, cause)
}
