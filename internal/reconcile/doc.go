// Package reconcile confirms optimistic awards with a remote ledger.
//
// A Confirmer performs one confirmation call. The Reconciler runs each
// call on its own goroutine and hands the Result back through a callback;
// it never touches award state itself. Callers (the engine) turn a failed
// Result into a compensating rollback on their own goroutine.
package reconcile
