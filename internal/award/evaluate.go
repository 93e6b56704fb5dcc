// Package award decides whether a position observation completes a
// challenge and how many points the completion is worth.
//
// Evaluate is pure: it reads the rule table, the observation, the live
// session and the challenge's persisted record, and returns a Decision.
// Applying the decision (setting the session's award flag, mutating the
// stores, dispatching confirmation) is the caller's job and must happen in
// the same event-loop step.
package award

import (
	"math"

	"github.com/roach88/earworm/internal/rules"
	"github.com/roach88/earworm/internal/session"
)

// Verdict names the step at which evaluation stopped.
type Verdict string

const (
	// VerdictIgnored: no usable duration, or the observation is for a
	// track that is not the active one.
	VerdictIgnored Verdict = "ignored"

	// VerdictSpurious: a completion-level reading before the minimum
	// elapsed position. Treated as a metadata glitch.
	VerdictSpurious Verdict = "spurious"

	// VerdictFrozen: the challenge is already completed and re-earning is
	// off.
	VerdictFrozen Verdict = "frozen"

	// VerdictDisqualified: strict mode and the current rate is above 1.0x.
	VerdictDisqualified Verdict = "disqualified"

	// VerdictProgress: below threshold, or this session already awarded.
	VerdictProgress Verdict = "progress"

	// VerdictAwarded: the completion fires.
	VerdictAwarded Verdict = "awarded"
)

// Observation is one telemetry sample from the playback engine.
type Observation struct {
	TrackID  string
	Position float64 // seconds
	Duration float64 // seconds; <= 0 while unknown
}

// Challenge is the evaluator's view of the challenge being played.
type Challenge struct {
	BasePoints int
	Completed  bool
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Verdict Verdict

	// Pct is the raw progress percentage of the observation.
	Pct float64

	// UpdateProgress is true when the progress display should follow
	// this observation.
	UpdateProgress bool

	// Award is set only for VerdictAwarded.
	Award *Award
}

// Evaluate runs the completion rules for one observation. st must already
// reflect the observation (the tracker is updated before evaluation).
func Evaluate(tbl rules.Table, obs Observation, st session.State, ch Challenge) Decision {
	if obs.Duration <= 0 || math.IsNaN(obs.Duration) || math.IsNaN(obs.Position) {
		return Decision{Verdict: VerdictIgnored}
	}
	if tbl.RequireActiveTrackID && obs.TrackID != st.ActiveTrackID {
		return Decision{Verdict: VerdictIgnored}
	}

	pct := obs.Position * 100 / obs.Duration
	reached := pct >= tbl.CompletionThresholdPct

	if obs.Position < tbl.MinSecondsBeforeAward && reached {
		return Decision{Verdict: VerdictSpurious, Pct: pct}
	}
	if ch.Completed && !tbl.AllowReearnOnReplay {
		return Decision{Verdict: VerdictFrozen, Pct: pct}
	}
	if !tbl.AwardOnFastRate && st.CurrentRate > 1.0 {
		return Decision{Verdict: VerdictDisqualified, Pct: pct, UpdateProgress: true}
	}
	if reached && !st.Awarded {
		a := Compute(tbl, ch.BasePoints, st.ForwardSeekCount, st.PeakRate)
		return Decision{Verdict: VerdictAwarded, Pct: pct, Award: &a}
	}
	return Decision{Verdict: VerdictProgress, Pct: pct, UpdateProgress: true}
}
