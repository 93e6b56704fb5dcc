// Package engine implements the earworm award engine.
//
// The engine receives playback telemetry and user actions as events,
// updates the live session, runs the completion evaluator, mutates the
// progress store and ledger, persists them, and dispatches remote
// confirmation for every optimistic award.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All state (session, progress store, ledger, pending confirmations) is
// owned by the goroutine that calls Apply, Run or Drain. Each event is
// processed to completion before the next is dequeued, so the award
// decision, its store mutations and its persistence happen in one step
// with no interleaving.
//
// Event Processing Flow:
//  1. Telemetry, commands and confirmation results are enqueued (FIFO)
//  2. Run() or Drain() dequeues events one at a time
//  3. Apply() stamps the event with the next logical seq and routes it
//  4. The handler mutates in-memory state and commits both blobs (and any
//     outbox change) to the Persister in one transaction
//  5. Awards are handed to the Reconciler, whose Result comes back as a
//     new event; a failed confirmation is rolled back by challenge id
//
// Confirmation is the only asynchronous boundary. Rollbacks are keyed by
// challenge id and session token, so a result that arrives after the user
// has moved on (or after a reset) is applied against current state or
// dropped as stale, never against a remembered copy.
//
// Logical Clock:
// Every processed event gets a strictly increasing seq from Clock.Next().
// Wall-clock time is only used for the completedAt field.
package engine
