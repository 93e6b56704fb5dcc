package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Request identifies one optimistic award awaiting confirmation.
type Request struct {
	ChallengeID string
	Points      int
	Session     string
}

// Result is the settled outcome of a Request.
type Result struct {
	Request

	// Err is nil when the remote accepted the award.
	Err error
}

// Confirmed reports whether the remote accepted the award.
func (r Result) Confirmed() bool {
	return r.Err == nil
}

// Abandoned reports whether the call was cut short by cancellation of the
// dispatching context rather than answered by the remote. Abandoned awards
// are neither confirmed nor rolled back.
func (r Result) Abandoned() bool {
	return errors.Is(r.Err, context.Canceled)
}

// Reconciler dispatches confirmations asynchronously.
//
// Thread-safety: Dispatch, InFlight and Wait are safe from any goroutine.
// The deliver callback runs on the confirmation goroutine; it must hand the
// Result to the owner of award state rather than mutate that state itself.
type Reconciler struct {
	confirmer Confirmer
	timeout   time.Duration
	logger    *slog.Logger

	wg       sync.WaitGroup
	inflight atomic.Int64
	settled  chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTimeout bounds each confirmation call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		r.timeout = d
	}
}

// WithLogger sets the logger for failed confirmations. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates a Reconciler around the given Confirmer.
func New(c Confirmer, opts ...Option) *Reconciler {
	if c == nil {
		c = NopConfirmer{}
	}
	r := &Reconciler{
		confirmer: c,
		settled:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Dispatch starts a confirmation and returns immediately. deliver is
// called exactly once with the Result, before the request stops counting
// as in flight.
func (r *Reconciler) Dispatch(ctx context.Context, req Request, deliver func(Result)) {
	r.inflight.Add(1)
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		err := r.confirm(ctx, req)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("confirmation failed",
				"challenge_id", req.ChallengeID,
				"points", req.Points,
				"session", req.Session,
				"error", err,
			)
		}

		deliver(Result{Request: req, Err: err})

		r.inflight.Add(-1)
		select {
		case r.settled <- struct{}{}:
		default:
		}
	}()
}

func (r *Reconciler) confirm(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.confirmer.Confirm(ctx, req.ChallengeID, req.Points)
}

// InFlight returns the number of dispatched requests not yet settled.
func (r *Reconciler) InFlight() int {
	return int(r.inflight.Load())
}

// Settled signals after each request stops counting as in flight.
// Signals coalesce; re-check InFlight after receiving.
func (r *Reconciler) Settled() <-chan struct{} {
	return r.settled
}

// Wait blocks until every dispatched request has settled.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
