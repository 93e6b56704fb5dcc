// Package harness runs listening scenarios against the real engine.
//
// A scenario is a YAML file describing a catalog, optional rule overrides,
// a sequence of player steps and assertions on the outcome. Each run uses a
// fresh in-memory store, scripted confirmations and deterministic session
// tokens, so the produced trace is stable enough for golden files.
//
// # Scenario Format
//
//	name: seek_penalty
//	description: "One forward seek costs ten percent"
//	rules:
//	  allow_reearn_on_replay: false
//	catalog:
//	  - id: t1
//	    title: Track One
//	    duration: 120
//	    points: 300
//	steps:
//	  - activate: t1
//	  - play: { track: t1, from: 1, to: 10 }
//	  - seek: { to: 100 }
//	  - play: { track: t1, from: 101, to: 110 }
//	  - end: true
//	assertions:
//	  - type: total_points
//	    equals: 270
//	  - type: record
//	    track: t1
//	    expect: { completed: true, points_deducted: 30, forward_seeks: 1 }
//
// # Steps
//
// Each step sets exactly one field:
//
//   - activate: start playing a track (a player command)
//   - play: report positions from..to, one second apart
//   - position: report a single position
//   - seek: seek the active track (a player command)
//   - rate: change the playback rate (a player command)
//   - end: the track finished or was stopped
//   - progress: set stored progress manually
//   - reset: reset all progress and points
//   - fail_next: make the next confirmation of a track fail
//   - offline: hold confirmations until the next restart
//   - restart: stop the engine and start a new one on the same store
//
// Confirmations are drained after every step unless the confirmer is
// offline.
//
// # Assertion Types
//
//   - total_points: the ledger total equals a value
//   - completed: the ledger's completed ids, in order
//   - record: selected fields of one progress record
//   - award_count: number of awards in the trace, optionally per track
//   - verdict_seen: a position verdict appears in the trace
//   - confirmation_count: number of confirmations with a given outcome
//   - pending: awards still awaiting confirmation in memory
//   - outbox: rows left in the store's pending confirmation table
//   - notices: rollback notices delivered to the notifier
//
// # Trace
//
// Every non-position outcome is traced. Position outcomes are traced when
// they award, count as a forward seek, or change verdict from the previous
// position, which keeps long playback ramps readable in golden files.
package harness
