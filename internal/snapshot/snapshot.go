// Package snapshot defines the two persisted blobs and their typed,
// versioned decoding.
//
// Decoding never rejects a blob that is merely old or incomplete: missing
// fields take defaults, counts are floored and clamped at zero, id lists
// drop non-string entries and duplicates. Only input that is not a JSON
// object at all is reported as a CorruptError, and even then the caller
// receives a usable default value alongside the error.
//
// Version history:
//
//	0 - shapes written by the original mobile app. The progress blob was
//	    a "challenges" array of full challenge objects; both blobs may be
//	    wrapped in a {"state": {...}, "version": N} persistence envelope.
//	1 - {completedChallenges, deductionsById} / {totalPoints, completedChallenges}.
//	2 - adds the explicit "version" field and optional completedAt on
//	    deduction entries.
package snapshot

import (
	"errors"
	"fmt"
)

// CurrentVersion is written by Encode*.
const CurrentVersion = 2

// Blob names in the key-value store.
const (
	ProgressBlobName = "progress"
	LedgerBlobName   = "ledger"
)

// Deduction is the penalty metadata persisted for a completed challenge.
type Deduction struct {
	PointsDeducted int      `json:"pointsDeducted"`
	ForwardSeeks   int      `json:"forwardSeeks"`
	PeakRate       *float64 `json:"peakRate,omitempty"`
	CompletedAt    string   `json:"completedAt,omitempty"`
}

// Progress is the durable part of the progress store.
type Progress struct {
	Version             int                  `json:"version"`
	CompletedChallenges []string             `json:"completedChallenges"`
	DeductionsByID      map[string]Deduction `json:"deductionsById"`
}

// Ledger is the durable user ledger.
type Ledger struct {
	Version             int      `json:"version"`
	TotalPoints         int      `json:"totalPoints"`
	CompletedChallenges []string `json:"completedChallenges"`
}

// EmptyProgress returns the default progress blob.
func EmptyProgress() Progress {
	return Progress{
		Version:             CurrentVersion,
		CompletedChallenges: []string{},
		DeductionsByID:      map[string]Deduction{},
	}
}

// EmptyLedger returns the default ledger blob.
func EmptyLedger() Ledger {
	return Ledger{
		Version:             CurrentVersion,
		CompletedChallenges: []string{},
	}
}

// CorruptError reports a blob that could not be interpreted at all.
type CorruptError struct {
	Blob string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt %s blob: %v", e.Blob, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
