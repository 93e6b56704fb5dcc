package engine

import (
	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/reconcile"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeTrackActivated makes a track the foreground track.
	EventTypeTrackActivated EventType = iota + 1
	// EventTypeTrackEnded discards the live session.
	EventTypeTrackEnded
	// EventTypePositionObserved is one telemetry sample.
	EventTypePositionObserved
	// EventTypeExplicitSeek is a seek issued through the engine.
	EventTypeExplicitSeek
	// EventTypeRateChanged is a playback rate change.
	EventTypeRateChanged
	// EventTypeProgressSet is a manual progress update.
	EventTypeProgressSet
	// EventTypeResetAll clears every completion and the ledger.
	EventTypeResetAll
	// EventTypeConfirmationResult settles an optimistic award.
	EventTypeConfirmationResult
)

var eventTypeNames = map[EventType]string{
	EventTypeTrackActivated:     "track_activated",
	EventTypeTrackEnded:         "track_ended",
	EventTypePositionObserved:   "position",
	EventTypeExplicitSeek:       "seek",
	EventTypeRateChanged:        "rate",
	EventTypeProgressSet:        "progress_set",
	EventTypeResetAll:           "reset_all",
	EventTypeConfirmationResult: "confirmation",
}

// String returns the snake_case event name used in logs and traces.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one input to the engine.
type Event struct {
	Type EventType

	// TrackID is the challenge id for track, position, seek and progress
	// events. Seek commands leave it empty to target the active track.
	TrackID string

	Position float64 // seconds
	Duration float64 // seconds
	Rate     float64
	Pct      float64

	// Command marks events issued through the engine's own command
	// surface. Applying a command event forwards it to the Player.
	Command bool

	// Result is set for EventTypeConfirmationResult.
	Result *reconcile.Result
}

// Confirmation describes how a ConfirmationResult event was settled.
type Confirmation string

const (
	ConfirmationConfirmed  Confirmation = "confirmed"
	ConfirmationRolledBack Confirmation = "rolled_back"
	// ConfirmationAbandoned: the call was cancelled; the outbox row stays
	// for replay on the next start.
	ConfirmationAbandoned Confirmation = "abandoned"
	// ConfirmationStale: no matching pending award (already settled, reset,
	// or superseded).
	ConfirmationStale Confirmation = "stale"
)

// Outcome reports what applying one event did.
type Outcome struct {
	Seq     int64
	Type    EventType
	TrackID string
	Session string

	// Started is true when a track activation began a new session.
	Started bool

	// SeekCounted is true when the event counted as a forward seek.
	SeekCounted  bool
	ForwardSeeks int
	PeakRate     float64

	// Verdict is set for position events.
	Verdict award.Verdict
	Pct     float64

	// Progress is the challenge's stored progress after the event.
	Progress float64

	// Award is set when a completion fired.
	Award *award.Award

	// Credited is true when the award added points to the ledger.
	Credited bool

	Confirmation Confirmation

	TotalPoints int
}
