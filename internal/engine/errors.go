package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an anomaly detected while applying an event.
//
// Expected conditions (missing duration, stale telemetry, disqualified
// rate, already completed) are never RuntimeErrors; they are reported as
// Outcome verdicts. RuntimeErrors cover:
//   - Unknown challenge: an action names a challenge not in the catalog
//   - Persist failed: the in-memory state changed but could not be saved
//   - Invalid event: malformed event data
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ChallengeID identifies the affected challenge, if any.
	ChallengeID string

	// Seq is the logical seq of the event being applied.
	Seq int64

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownChallenge indicates an id that is not in the catalog.
	ErrCodeUnknownChallenge RuntimeErrorCode = "UNKNOWN_CHALLENGE"

	// ErrCodePersistFailed indicates a failed durable write.
	ErrCodePersistFailed RuntimeErrorCode = "PERSIST_FAILED"

	// ErrCodeInvalidEvent indicates malformed event data.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ChallengeID != "" {
		msg += fmt.Sprintf(" (challenge=%s)", e.ChallengeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsUnknownChallenge returns true if the error is an unknown challenge error.
// Uses errors.As to handle wrapped errors.
func IsUnknownChallenge(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownChallenge
	}
	return false
}

// IsPersistError returns true if the error is a persistence failure.
func IsPersistError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodePersistFailed
	}
	return false
}

// IsInvalidEvent returns true if the error reports malformed event data.
func IsInvalidEvent(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidEvent
	}
	return false
}

func newUnknownChallengeError(id string, seq int64) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodeUnknownChallenge,
		Message:     "challenge not in catalog",
		ChallengeID: id,
		Seq:         seq,
	}
}

func newPersistError(id string, seq int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:        ErrCodePersistFailed,
		Message:     "state changed but could not be persisted",
		ChallengeID: id,
		Seq:         seq,
		Err:         err,
	}
}

func newInvalidEventError(seq int64, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf(format, args...),
		Seq:     seq,
	}
}
