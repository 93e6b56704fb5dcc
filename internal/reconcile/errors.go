package reconcile

import (
	"errors"
	"fmt"
)

// ConfirmError reports a confirmation the remote ledger did not accept.
type ConfirmError struct {
	ChallengeID string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	Err error
}

func (e *ConfirmError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("confirm %s: remote returned status %d", e.ChallengeID, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("confirm %s: %v", e.ChallengeID, e.Err)
	}
	return fmt.Sprintf("confirm %s: rejected", e.ChallengeID)
}

func (e *ConfirmError) Unwrap() error {
	return e.Err
}

// IsConfirmError returns true if err is (or wraps) a ConfirmError.
func IsConfirmError(err error) bool {
	var ce *ConfirmError
	return errors.As(err, &ce)
}

// ErrSimulatedFailure is returned by SimulatedConfirmer on a losing draw.
var ErrSimulatedFailure = errors.New("network error")
