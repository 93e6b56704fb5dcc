package snapshot

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/roach88/earworm/internal/catalog"
)

// maxCount bounds sanitized integers so float-encoded garbage cannot
// overflow int on 32-bit platforms.
const maxCount = math.MaxInt32

// DecodeProgress sanitizes a persisted progress blob. A nil or empty blob
// yields EmptyProgress with no error.
func DecodeProgress(raw []byte) (Progress, error) {
	out := EmptyProgress()

	fields, err := objectFields(raw)
	if err != nil {
		return out, &CorruptError{Blob: ProgressBlobName, Err: err}
	}
	if fields == nil {
		return out, nil
	}

	if legacy, ok := fields["challenges"]; ok && fields["completedChallenges"] == nil {
		migrateChallengeArray(legacy, &out)
		return out, nil
	}

	out.CompletedChallenges = sanitizeIDs(fields["completedChallenges"])

	var deductions map[string]json.RawMessage
	if json.Unmarshal(fields["deductionsById"], &deductions) == nil {
		for id, rawEntry := range deductions {
			id = catalog.NormalizeID(id)
			if id == "" {
				continue
			}
			out.DeductionsByID[id] = sanitizeDeduction(rawEntry)
		}
	}

	return out, nil
}

// DecodeLedger sanitizes a persisted ledger blob. A nil or empty blob
// yields EmptyLedger with no error.
func DecodeLedger(raw []byte) (Ledger, error) {
	out := EmptyLedger()

	fields, err := objectFields(raw)
	if err != nil {
		return out, &CorruptError{Blob: LedgerBlobName, Err: err}
	}
	if fields == nil {
		return out, nil
	}

	out.TotalPoints = sanitizeCount(fields["totalPoints"])
	out.CompletedChallenges = sanitizeIDs(fields["completedChallenges"])
	return out, nil
}

// EncodeProgress serializes p at CurrentVersion.
func EncodeProgress(p Progress) ([]byte, error) {
	p.Version = CurrentVersion
	if p.CompletedChallenges == nil {
		p.CompletedChallenges = []string{}
	}
	if p.DeductionsByID == nil {
		p.DeductionsByID = map[string]Deduction{}
	}
	return json.Marshal(p)
}

// EncodeLedger serializes l at CurrentVersion.
func EncodeLedger(l Ledger) ([]byte, error) {
	l.Version = CurrentVersion
	if l.CompletedChallenges == nil {
		l.CompletedChallenges = []string{}
	}
	return json.Marshal(l)
}

// objectFields returns the top-level fields of raw, unwrapping a
// {"state": {...}, "version": N} envelope. nil, nil means "no blob".
func objectFields(raw []byte) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}

	if state, ok := fields["state"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(state, &inner) == nil && inner != nil {
			return inner, nil
		}
	}
	return fields, nil
}

// migrateChallengeArray reduces a version 0 "challenges" array of full
// challenge objects to completed ids and deductions.
func migrateChallengeArray(raw json.RawMessage, out *Progress) {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(item, &fields) != nil {
			continue
		}
		var id string
		if json.Unmarshal(fields["id"], &id) != nil {
			continue
		}
		id = catalog.NormalizeID(id)
		var completed bool
		if id == "" || seen[id] || json.Unmarshal(fields["completed"], &completed) != nil || !completed {
			continue
		}
		seen[id] = true
		out.CompletedChallenges = append(out.CompletedChallenges, id)
		out.DeductionsByID[id] = sanitizeDeduction(item)
	}
}

func sanitizeDeduction(raw json.RawMessage) Deduction {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return Deduction{}
	}

	d := Deduction{
		PointsDeducted: sanitizeCount(fields["pointsDeducted"]),
		ForwardSeeks:   sanitizeCount(fields["forwardSeeks"]),
	}

	var rate float64
	if json.Unmarshal(fields["peakRate"], &rate) == nil && rate > 0 && !math.IsInf(rate, 0) {
		d.PeakRate = &rate
	}

	var at string
	if json.Unmarshal(fields["completedAt"], &at) == nil {
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			d.CompletedAt = ts.UTC().Format(time.RFC3339Nano)
		}
	}
	return d
}

// sanitizeCount floors a JSON number and clamps it to [0, maxCount].
// Anything that is not a number becomes 0.
func sanitizeCount(raw json.RawMessage) int {
	if raw == nil {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	f = math.Floor(f)
	switch {
	case f <= 0:
		return 0
	case f >= maxCount:
		return maxCount
	default:
		return int(f)
	}
}

// sanitizeIDs keeps the string entries of a JSON array, NFC-normalized and
// de-duplicated in first-seen order. The result is never nil.
func sanitizeIDs(raw json.RawMessage) []string {
	ids := []string{}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return ids
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var id string
		if json.Unmarshal(item, &id) != nil {
			continue
		}
		id = catalog.NormalizeID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
