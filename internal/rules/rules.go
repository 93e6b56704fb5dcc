package rules

import (
	"fmt"
	"sort"
)

// RatePenalty is one row of the rate penalty table: a session whose peak
// playback rate is at least Threshold loses Penalty (a fraction of base
// points).
type RatePenalty struct {
	Threshold float64 `json:"threshold"`
	Penalty   float64 `json:"penalty"`
}

// Table is the immutable rule configuration.
type Table struct {
	// CompletionThresholdPct is the progress percentage at which a track
	// counts as listened. Ties count as complete.
	CompletionThresholdPct float64

	// MinSecondsBeforeAward guards against spurious high readings right
	// after load.
	MinSecondsBeforeAward float64

	AllowReearnOnReplay  bool
	AwardOnFastRate      bool
	RequireActiveTrackID bool

	// ForwardSeekThresholdSec is the smallest forward jump, in seconds,
	// that is treated as a seek rather than normal playback.
	ForwardSeekThresholdSec float64

	DeductOnForwardSeek   bool
	ForwardSeekPenaltyPct float64

	// RatePenalties is ordered by descending Threshold once the table has
	// passed through New.
	RatePenalties []RatePenalty
}

// Default returns the rule table the app shipped with.
func Default() Table {
	t, err := New(Table{
		CompletionThresholdPct:  90,
		MinSecondsBeforeAward:   3,
		AllowReearnOnReplay:     false,
		AwardOnFastRate:         true,
		RequireActiveTrackID:    true,
		ForwardSeekThresholdSec: 5,
		DeductOnForwardSeek:     true,
		ForwardSeekPenaltyPct:   0.1,
		RatePenalties: []RatePenalty{
			{Threshold: 1.25, Penalty: 0.05},
			{Threshold: 2.0, Penalty: 0.15},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("rules: default table invalid: %v", err))
	}
	return t
}

// New orders the rate penalty table and validates the result.
// The returned table owns its own copy of RatePenalties.
func New(t Table) (Table, error) {
	penalties := make([]RatePenalty, len(t.RatePenalties))
	copy(penalties, t.RatePenalties)
	sort.SliceStable(penalties, func(i, j int) bool {
		return penalties[i].Threshold > penalties[j].Threshold
	})
	t.RatePenalties = penalties

	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate reports the first configuration inconsistency found.
func (t Table) Validate() error {
	if t.CompletionThresholdPct <= 0 || t.CompletionThresholdPct > 100 {
		return newConfigError(ErrCodeInvalidThreshold, "completion_threshold_pct",
			fmt.Sprintf("must be in (0, 100], got %v", t.CompletionThresholdPct))
	}
	if t.MinSecondsBeforeAward < 0 {
		return newConfigError(ErrCodeInvalidThreshold, "min_seconds_before_award",
			fmt.Sprintf("must be >= 0, got %v", t.MinSecondsBeforeAward))
	}
	if t.ForwardSeekThresholdSec <= 0 {
		return newConfigError(ErrCodeInvalidThreshold, "forward_seek_threshold_sec",
			fmt.Sprintf("must be > 0, got %v", t.ForwardSeekThresholdSec))
	}
	if t.ForwardSeekPenaltyPct < 0 || t.ForwardSeekPenaltyPct > 1 {
		return newConfigError(ErrCodeInvalidPenalty, "forward_seek_penalty_pct",
			fmt.Sprintf("must be in [0, 1], got %v", t.ForwardSeekPenaltyPct))
	}

	seen := make(map[float64]bool, len(t.RatePenalties))
	for i, rp := range t.RatePenalties {
		field := fmt.Sprintf("rate_penalties[%d]", i)
		if rp.Threshold <= 0 {
			return newConfigError(ErrCodeInvalidRateTable, field,
				fmt.Sprintf("threshold must be > 0, got %v", rp.Threshold))
		}
		if rp.Penalty < 0 || rp.Penalty > 1 {
			return newConfigError(ErrCodeInvalidRateTable, field,
				fmt.Sprintf("penalty must be in [0, 1], got %v", rp.Penalty))
		}
		if seen[rp.Threshold] {
			return newConfigError(ErrCodeInvalidRateTable, field,
				fmt.Sprintf("duplicate threshold %v", rp.Threshold))
		}
		seen[rp.Threshold] = true
		if i > 0 && t.RatePenalties[i-1].Threshold < rp.Threshold {
			return newConfigError(ErrCodeInvalidRateTable, field,
				"thresholds must be in descending order")
		}
	}

	if !t.AwardOnFastRate && len(t.RatePenalties) > 0 {
		return newConfigError(ErrCodeConflictingRatePolicy, "award_on_fast_rate",
			"award_on_fast_rate=false disqualifies fast sessions; rate_penalties must be empty")
	}

	return nil
}

// RatePenaltyFor returns the penalty fraction for a session whose fastest
// observed rate was peak. The table is scanned from the highest threshold
// down and the first row with peak >= threshold wins.
func (t Table) RatePenaltyFor(peak float64) float64 {
	for _, rp := range t.RatePenalties {
		if peak >= rp.Threshold {
			return rp.Penalty
		}
	}
	return 0
}
