package analytics

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error Kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies a failure of the upstream analytics API.
// The kind determines both the retry policy and whether the failure
// must be escalated to an operator.
type ErrorKind string

const (
	// KindAuthentication indicates invalid or expired credentials
	KindAuthentication ErrorKind = "AUTHENTICATION"
	// KindRateLimit indicates the upstream rejected the request with HTTP 429
	KindRateLimit ErrorKind = "RATE_LIMIT"
	// KindValidation indicates a request that the upstream considers malformed
	KindValidation ErrorKind = "VALIDATION"
	// KindNotFound indicates the requested resource does not exist upstream
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindServer indicates an upstream 5xx failure
	KindServer ErrorKind = "SERVER"
	// KindNetwork indicates a transport-level failure (DNS, timeout, reset)
	KindNetwork ErrorKind = "NETWORK"
	// KindMaxRetries indicates the retry budget was exhausted
	KindMaxRetries ErrorKind = "MAX_RETRIES"
	// KindInvalidResponse indicates a 2xx response whose body failed shape validation
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
)

// Retryable reports whether another attempt against the upstream may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}

// Critical reports whether the failure must be surfaced to an operator
// rather than handled as a routine operational condition.
func (k ErrorKind) Critical() bool {
	switch k {
	case KindAuthentication, KindNetwork, KindMaxRetries:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

// Error is a classified failure raised by the analytics client.
type Error struct {
	// Kind is the taxonomy classification of the failure
	Kind ErrorKind
	// Op names the client operation that failed, e.g. "fetchPage"
	Op string
	// Attempts is the number of attempts consumed before the error was raised
	Attempts int
	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analytics: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("analytics: %s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error kind permits another attempt.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// Critical reports whether the error must be escalated to an operator.
func (e *Error) Critical() bool {
	return e.Kind.Critical()
}

// NewError creates a classified analytics error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the error kind from err, or an empty kind when err is not
// an analytics error.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err is an analytics error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
