package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/progress"
	"github.com/roach88/earworm/internal/reconcile"
	"github.com/roach88/earworm/internal/rules"
	"github.com/roach88/earworm/internal/session"
	"github.com/roach88/earworm/internal/snapshot"
	"github.com/roach88/earworm/internal/store"
)

// Persister is the durable key-value store. *store.Store implements it.
type Persister interface {
	LoadBlob(ctx context.Context, name string) ([]byte, error)
	Commit(ctx context.Context, b store.Batch) error
	PendingConfirmations(ctx context.Context) ([]store.Pending, error)
	LastSeq(ctx context.Context) (int64, error)
}

// Engine is the single-writer award engine.
//
// CRITICAL: All mutations happen on the goroutine that calls Apply, Run or
// Drain. Other goroutines submit work through Enqueue and the command
// methods (Play, Seek, SetRate, EndTrack).
//
// Thread-safety model:
//   - Enqueue(), Play(), Seek(), SetRate(), EndTrack(): safe from any goroutine
//   - Apply(), Run(), Drain(), Load(), Resume(), Status(): loop goroutine only
type Engine struct {
	rules    rules.Table
	catalog  *catalog.Catalog
	tracker  *session.Tracker
	progress *progress.Store
	ledger   *progress.Ledger

	persister  Persister
	reconciler *reconcile.Reconciler
	player     Player
	notifier   Notifier
	observer   func(Outcome)

	clock  *Clock
	now    func() time.Time
	queue  *eventQueue
	logger *slog.Logger
	tokens session.TokenGenerator

	// pending mirrors the outbox: optimistic awards awaiting a Result.
	pending map[string]reconcile.Request

	idle     chan struct{}
	idleOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersister makes the engine durable. Without one, state lives only
// in memory.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithReconciler sets the reconciler used for award confirmation.
// Default: a reconciler around reconcile.NopConfirmer.
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(e *Engine) {
		e.reconciler = r
	}
}

// WithPlayer sets the playback command sink.
func WithPlayer(p Player) Option {
	return func(e *Engine) {
		e.player = p
	}
}

// WithNotifier sets the receiver of rollback notices.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithObserver registers a callback invoked with every Outcome, on the
// loop goroutine.
func WithObserver(fn func(Outcome)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithTokens sets the session token generator.
func WithTokens(g session.TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithNow sets the wall clock used for completedAt.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over a validated rule table and catalog.
func New(tbl rules.Table, cat *catalog.Catalog, opts ...Option) (*Engine, error) {
	if err := tbl.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}

	e := &Engine{
		rules:    tbl,
		catalog:  cat,
		progress: progress.NewStore(cat, tbl.AllowReearnOnReplay),
		ledger:   progress.NewLedger(),
		player:   NopPlayer{},
		clock:    NewClock(),
		now:      time.Now,
		queue:    newEventQueue(),
		pending:  map[string]reconcile.Request{},
		idle:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.reconciler == nil {
		e.reconciler = reconcile.New(reconcile.NopConfirmer{}, reconcile.WithLogger(e.logger))
	}
	e.tracker = session.NewTracker(tbl, e.tokens)

	return e, nil
}

// Load rehydrates the progress store and ledger from the persister and
// resumes the logical clock. Corrupt blobs are replaced by defaults; the
// returned error then satisfies snapshot.IsCorrupt and the engine is still
// usable. Any other error means the persister could not be read.
func (e *Engine) Load(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}

	rawProgress, err := e.persister.LoadBlob(ctx, snapshot.ProgressBlobName)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	rawLedger, err := e.persister.LoadBlob(ctx, snapshot.LedgerBlobName)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	last, err := e.persister.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("load seq: %w", err)
	}

	p, progressErr := snapshot.DecodeProgress(rawProgress)
	l, ledgerErr := snapshot.DecodeLedger(rawLedger)
	e.progress.Restore(p)
	e.ledger.Restore(l)
	e.clock.AdvanceTo(last)

	corrupt := errors.Join(progressErr, ledgerErr)
	if corrupt != nil {
		e.logger.Warn("persisted state was corrupt, using defaults", "error", corrupt)
	}

	e.logger.Info("state loaded",
		"total_points", e.ledger.TotalPoints(),
		"completed", len(e.ledger.CompletedIDs()),
		"seq", last,
	)
	return corrupt
}

// Resume re-dispatches every pending confirmation left in the outbox by a
// previous process. Rows whose award is no longer in the ledger are
// settled without a call. It returns the number of confirmations
// dispatched.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	if e.persister == nil {
		return 0, nil
	}

	rows, err := e.persister.PendingConfirmations(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}

	var stale []string
	dispatched := 0
	for _, row := range rows {
		if !e.ledger.Has(row.ChallengeID) {
			stale = append(stale, row.ChallengeID)
			continue
		}
		req := reconcile.Request{
			ChallengeID: row.ChallengeID,
			Points:      row.Points,
			Session:     row.Session,
		}
		e.pending[row.ChallengeID] = req
		e.dispatch(ctx, req)
		dispatched++
	}

	if len(stale) > 0 {
		seq := e.clock.Next()
		if err := e.persister.Commit(ctx, store.Batch{Seq: seq, Settle: stale}); err != nil {
			return dispatched, fmt.Errorf("resume: settle stale: %w", err)
		}
	}

	e.logger.Info("outbox resumed", "dispatched", dispatched, "stale", len(stale))
	return dispatched, nil
}

// Enqueue submits an event for processing by the loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Play activates trackID and tells the Player to load it.
func (e *Engine) Play(trackID string) bool {
	return e.Enqueue(Event{Type: EventTypeTrackActivated, TrackID: trackID, Command: true})
}

// Seek records an explicit seek on the active track and forwards it to
// the Player.
func (e *Engine) Seek(position float64) bool {
	return e.Enqueue(Event{Type: EventTypeExplicitSeek, Position: position, Command: true})
}

// SetRate records a rate change and forwards it to the Player.
func (e *Engine) SetRate(rate float64) bool {
	return e.Enqueue(Event{Type: EventTypeRateChanged, Rate: rate, Command: true})
}

// EndTrack discards the live session.
func (e *Engine) EndTrack() bool {
	return e.Enqueue(Event{Type: EventTypeTrackEnded, Command: true})
}

// QueueLen returns the number of events waiting to be applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On event processing failure, the error is logged with the
// event and processing continues. In-memory state stays authoritative; a
// failed persist is retried implicitly by the next successful commit,
// which always writes both blobs whole.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.reconciler.Wait()

	idle := e.idle
	stopping := false

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.Apply(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		if stopping && e.reconciler.InFlight() == 0 && e.queue.Len() == 0 {
			e.logger.Info("engine stopping: idle")
			e.queue.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}

		case <-idle:
			stopping = true
			idle = nil

		case <-e.reconciler.Settled():
		}
	}
}

// StopWhenIdle asks Run to return once the queue is empty and every
// dispatched confirmation has been applied. Safe from any goroutine.
func (e *Engine) StopWhenIdle() {
	e.idleOnce.Do(func() { close(e.idle) })
}

// Drain applies queued events until the queue is empty and no
// confirmation is in flight. Results of confirmations dispatched while
// draining are applied too.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.Apply(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		if e.reconciler.InFlight() == 0 && e.queue.Len() == 0 {
			return nil
		}
		if e.queue.Closed() {
			e.reconciler.Wait()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.queue.Wait():
		case <-e.reconciler.Settled():
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Status is a read-only view of engine state.
type Status struct {
	TotalPoints  int
	CompletedIDs []string
	Records      []progress.Record
	Session      session.State
	Live         bool
	Pending      []reconcile.Request
	Seq          int64
}

// Status returns a copy of the current state.
func (e *Engine) Status() Status {
	pending := make([]reconcile.Request, 0, len(e.pending))
	for _, id := range slices.Sorted(maps.Keys(e.pending)) {
		pending = append(pending, e.pending[id])
	}
	return Status{
		TotalPoints:  e.ledger.TotalPoints(),
		CompletedIDs: e.ledger.CompletedIDs(),
		Records:      e.progress.Records(),
		Session:      e.tracker.Current(),
		Live:         e.tracker.Live(),
		Pending:      pending,
		Seq:          e.clock.Current(),
	}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() rules.Table {
	return e.rules
}

// logEventError logs a failed event with enough context to replay it by
// hand.
func (e *Engine) logEventError(ev Event, err error) {
	attrs := []any{
		"event", ev.Type.String(),
		"challenge_id", ev.TrackID,
		"error", err,
	}
	switch ev.Type {
	case EventTypePositionObserved, EventTypeExplicitSeek:
		attrs = append(attrs, "position", ev.Position, "duration", ev.Duration)
	case EventTypeRateChanged:
		attrs = append(attrs, "rate", ev.Rate)
	case EventTypeProgressSet:
		attrs = append(attrs, "pct", ev.Pct)
	case EventTypeConfirmationResult:
		if ev.Result != nil {
			attrs = append(attrs, "challenge_id", ev.Result.ChallengeID, "points", ev.Result.Points)
		}
	}
	e.logger.Error("event processing failed", attrs...)
}
