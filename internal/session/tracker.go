// Package session tracks the mutable state of the currently loaded track.
//
// Exactly one session is live at a time. A session starts when a new track
// identity becomes active and is discarded when another track replaces it
// or the session is ended. Session state is never persisted.
//
// Forward seeks are detected by two sources, position jumps in telemetry
// and explicit seek commands, and both feed the same watermark through
// Tracker.advance. An explicit seek moves the watermark to its target, so
// the observation that follows it does not count the same gesture again.
package session

import (
	"math"

	"github.com/google/uuid"

	"github.com/roach88/earworm/internal/rules"
)

// TokenGenerator issues session tokens used to correlate log lines and
// trace entries for one listening session.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable session tokens.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// State is a snapshot of the live session.
type State struct {
	Token         string
	ActiveTrackID string

	// LastPosition is the forward-seek watermark in seconds.
	LastPosition float64

	ForwardSeekCount int
	PeakRate         float64
	CurrentRate      float64

	// PeakPct is the highest progress percentage reported this session.
	PeakPct float64

	// Awarded is set once this session has made its award attempt.
	Awarded bool
}

// Tracker owns the live session. It is not safe for concurrent use; the
// engine drives it from its single event loop.
type Tracker struct {
	seekThreshold float64
	requireActive bool
	tokens        TokenGenerator

	live  bool
	state State
}

// NewTracker creates a tracker with no active session.
func NewTracker(tbl rules.Table, tokens TokenGenerator) *Tracker {
	if tokens == nil {
		tokens = UUIDv7Generator{}
	}
	return &Tracker{
		seekThreshold: tbl.ForwardSeekThresholdSec,
		requireActive: tbl.RequireActiveTrackID,
		tokens:        tokens,
		state:         State{PeakRate: 1.0, CurrentRate: 1.0},
	}
}

// Activate starts a fresh session for trackID. Activating the track that
// is already live is a no-op and returns false; a replay of the same track
// needs End first.
func (t *Tracker) Activate(trackID string) bool {
	if t.live && t.state.ActiveTrackID == trackID {
		return false
	}
	t.live = true
	t.state = State{
		Token:         t.tokens.Generate(),
		ActiveTrackID: trackID,
		PeakRate:      1.0,
		CurrentRate:   1.0,
	}
	return true
}

// End discards the live session. Telemetry is rejected until the next
// Activate when the active-track guard is enabled.
func (t *Tracker) End() {
	t.live = false
	t.state = State{PeakRate: 1.0, CurrentRate: 1.0}
}

// Live reports whether a session is active.
func (t *Tracker) Live() bool {
	return t.live
}

// Accepts reports whether telemetry for trackID belongs to the live
// session.
func (t *Tracker) Accepts(trackID string) bool {
	if !t.requireActive {
		return true
	}
	return t.live && trackID == t.state.ActiveTrackID
}

// ObservePosition applies a telemetry position. It returns true when the
// jump from the watermark counted as a forward seek.
func (t *Tracker) ObservePosition(trackID string, position float64) bool {
	if !t.Accepts(trackID) || !finite(position) {
		return false
	}
	return t.advance(position, false)
}

// ExplicitSeek applies a seek issued through the engine's own command. It
// returns true when the seek counted as a forward seek.
func (t *Tracker) ExplicitSeek(trackID string, target float64) bool {
	if !t.Accepts(trackID) || !finite(target) {
		return false
	}
	return t.advance(target, true)
}

// advance is the single forward-seek detector. Observations only ever raise
// the watermark; explicit seeks set it to the target, backwards included.
func (t *Tracker) advance(position float64, explicit bool) bool {
	seek := position-t.state.LastPosition > t.seekThreshold
	if seek {
		t.state.ForwardSeekCount++
	}
	if explicit || position > t.state.LastPosition {
		t.state.LastPosition = position
	}
	return seek
}

// RateChanged records a playback rate. The peak never decreases within a
// session. Non-positive rates are ignored.
func (t *Tracker) RateChanged(rate float64) {
	if !finite(rate) || rate <= 0 {
		return
	}
	t.state.CurrentRate = rate
	if rate > t.state.PeakRate {
		t.state.PeakRate = rate
	}
}

// NotePct raises the session's peak progress and returns it.
func (t *Tracker) NotePct(pct float64) float64 {
	if pct > t.state.PeakPct {
		t.state.PeakPct = pct
	}
	return t.state.PeakPct
}

// MarkAwarded sets the award flag. It returns false when the session had
// already made its award attempt.
func (t *Tracker) MarkAwarded() bool {
	if t.state.Awarded {
		return false
	}
	t.state.Awarded = true
	return true
}

// Current returns a copy of the live session state.
func (t *Tracker) Current() State {
	return t.state
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
