// Package store provides SQLite-backed durable key-value storage for the
// award engine.
//
// The store holds:
//   - Blobs: the two named JSON documents ("progress" and "ledger") that
//     make up the persisted state. Their schema is owned by package
//     snapshot; the store treats them as opaque bytes.
//   - Pending confirmations: an outbox of optimistic awards that the
//     remote ledger has not yet confirmed or rejected. Rows are written in
//     the same transaction as the award's blobs and deleted when the award
//     settles, so a crash in between leaves a row to replay on startup.
//
// # Ordering
//
// Every write carries the engine's logical seq. Pending rows are read
// ORDER BY seq ASC, challenge_id ASC so replay is deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - A flock on "<path>.lock" keeps a second process from opening the
//     same database for writing
package store
