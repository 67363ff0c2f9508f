package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the registry or store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotFound is returned by a data store when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrSessionClosed is returned when a turn is submitted to a session that has been torn down.
var ErrSessionClosed = errors.New("session closed")

// ErrTransitionRejected is returned when a handler requests a role change the
// transition table does not allow.
var ErrTransitionRejected = errors.New("transition rejected")

// ErrActionUnavailable is returned when an explicit action is not offered by the active role.
var ErrActionUnavailable = errors.New("action not available in current role")

// ErrInvariant is returned when a context would violate a session invariant.
var ErrInvariant = errors.New("session invariant violated")

// ErrInvalidRole is returned for a role outside the closed set.
var ErrInvalidRole = errors.New("invalid role")

// ValidationError reports malformed user input (identifier or credential).
// It is recovered with a re-prompt and never counts as an attempt.
type ValidationError struct {
	Field  string
	Reason string
	// Cause is the underlying sentinel, if any.
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// VerificationFailure reports a failed verification call. Always counted.
type VerificationFailure struct {
	Attempt int
	Reason  string
	Err     error
}

func (e *VerificationFailure) Error() string {
	msg := fmt.Sprintf("verification failed (attempt %d)", e.Attempt)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationFailure) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failure of the identity or data store.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// SecurityViolation records a sensitive-data request.
type SecurityViolation struct {
	UserID  string
	Keyword string
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("sensitive-data request (keyword %q)", e.Keyword)
}
