package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/engine"
	"github.com/roach88/earworm/internal/reconcile"
	"github.com/roach88/earworm/internal/rules"
	"github.com/roach88/earworm/internal/session"
	"github.com/roach88/earworm/internal/store"
	"github.com/roach88/earworm/internal/testutil"
)

// Epoch is the wall-clock start of every scenario run.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness drives one scenario through a real engine.
//
// Restart steps replace the engine in place; the store, logical clock,
// session tokens and confirmer outlive it, as they would across a process
// restart.
type Harness struct {
	rules     rules.Table
	catalog   *catalog.Catalog
	store     *store.Store
	clock     *engine.Clock
	now       func() time.Time
	tokens    session.TokenGenerator
	confirmer *gatedConfirmer
	player    *testutil.RecordingPlayer
	notifier  engine.Notifier
	timeout   time.Duration
	logger    *slog.Logger

	engine     *engine.Engine
	reconciler *reconcile.Reconciler
	ctx        context.Context
	cancel     context.CancelFunc

	result      *Result
	lastVerdict award.Verdict
	notices     int
}

// Options points a run at collaborators other than the defaults.
// The zero value runs against a fresh in-memory store with a scripted
// confirmer and discarded logs.
type Options struct {
	// Store is used instead of an in-memory database. The caller keeps
	// ownership and closes it.
	Store *store.Store

	// Confirmer receives award confirmations. fail_next and offline steps
	// still apply on top of it.
	Confirmer reconcile.Confirmer

	// Rules and Catalog are used when the scenario does not define its own.
	Rules   *rules.Table
	Catalog *catalog.Catalog

	// ConfirmTimeout bounds each confirmation call. Zero means no bound.
	ConfirmTimeout time.Duration

	Logger   *slog.Logger
	Notifier engine.Notifier
	Tokens   session.TokenGenerator
	Now      func() time.Time
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Build the rule table and catalog
// 2. Open a fresh in-memory store and start the engine on it
// 3. Execute steps, draining confirmations after each one
// 4. Capture final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes a scenario with the given collaborators.
// Against a shared store the final state includes whatever the store
// already held, so absolute assertions may not hold.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	base := rules.Default()
	if opts.Rules != nil {
		base = *opts.Rules
	}
	tbl, err := rules.New(scenario.Rules.Apply(base))
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	if len(scenario.Catalog) > 0 {
		cat, err = catalog.New(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog: %w", err)
		}
	}

	st := opts.Store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	next := opts.Confirmer
	if next == nil {
		next = testutil.NewScriptedConfirmer()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}
	var tokens session.TokenGenerator = testutil.NewSequentialTokens(scenario.SessionPrefix)
	if opts.Tokens != nil {
		tokens = opts.Tokens
	}
	now := testutil.NewWallClock(Epoch, time.Second).Now
	if opts.Now != nil {
		now = opts.Now
	}

	h := &Harness{
		rules:     tbl,
		catalog:   cat,
		store:     st,
		clock:     engine.NewClock(),
		now:       now,
		tokens:    tokens,
		confirmer: &gatedConfirmer{next: next, fails: map[string]int{}},
		player:    &testutil.RecordingPlayer{},
		notifier:  opts.Notifier,
		timeout:   opts.ConfirmTimeout,
		logger:    logger,
		result:    NewResult(),
	}

	if err := h.start(); err != nil {
		return nil, err
	}
	defer h.stop()

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.kind(), err)
		}
	}

	if err := h.captureState(); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// start builds an engine over the shared store, restores its state,
// resumes the outbox and drains the resulting confirmations.
func (h *Harness) start() error {
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.reconciler = reconcile.New(h.confirmer, reconcile.WithTimeout(h.timeout), reconcile.WithLogger(h.logger))

	eng, err := engine.New(h.rules, h.catalog,
		engine.WithPersister(h.store),
		engine.WithReconciler(h.reconciler),
		engine.WithPlayer(h.player),
		engine.WithNotifier(engine.NotifierFunc(h.notify)),
		engine.WithObserver(h.observe),
		engine.WithTokens(h.tokens),
		engine.WithClock(h.clock),
		engine.WithNow(h.now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		h.cancel()
		return fmt.Errorf("failed to create engine: %w", err)
	}
	h.engine = eng

	if err := eng.Load(h.ctx); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if _, err := eng.Resume(h.ctx); err != nil {
		return fmt.Errorf("failed to resume outbox: %w", err)
	}
	return h.drain()
}

// stop cancels in-flight confirmations and shuts the engine down.
// Cancelled confirmations stay in the store's outbox.
func (h *Harness) stop() {
	h.cancel()
	h.reconciler.Wait()
	h.engine.Stop()
}

func (h *Harness) notify(n engine.Notice) {
	h.notices++
	if h.notifier != nil {
		h.notifier.Notify(n)
	}
}

func (h *Harness) restart() error {
	total := h.engine.Status().TotalPoints
	h.stop()
	h.confirmer.offline.Store(false)

	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:         h.clock.Current(),
		Event:       "restart",
		TotalPoints: total,
	})
	h.lastVerdict = ""
	return h.start()
}

// drain applies queued confirmation results. Offline confirmations never
// settle, so draining is skipped until the next restart.
func (h *Harness) drain() error {
	if h.confirmer.offline.Load() {
		return nil
	}
	if err := h.engine.Drain(h.ctx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

// execute runs one step, then drains confirmations.
func (h *Harness) execute(step Step) error {
	switch step.kind() {
	case "activate":
		h.apply(engine.Event{Type: engine.EventTypeTrackActivated, TrackID: step.Activate, Command: true})

	case "play":
		p := step.Play
		duration := h.duration(p.Track, p.Duration)
		for pos := p.From; pos <= p.To; pos++ {
			h.apply(engine.Event{
				Type:     engine.EventTypePositionObserved,
				TrackID:  p.Track,
				Position: pos,
				Duration: duration,
			})
		}

	case "position":
		p := step.Position
		h.apply(engine.Event{
			Type:     engine.EventTypePositionObserved,
			TrackID:  p.Track,
			Position: p.At,
			Duration: h.duration(p.Track, p.Duration),
		})

	case "seek":
		h.apply(engine.Event{Type: engine.EventTypeExplicitSeek, TrackID: step.Seek.Track, Position: step.Seek.To, Command: true})

	case "rate":
		h.apply(engine.Event{Type: engine.EventTypeRateChanged, Rate: step.Rate, Command: true})

	case "end":
		h.apply(engine.Event{Type: engine.EventTypeTrackEnded})

	case "progress":
		h.apply(engine.Event{Type: engine.EventTypeProgressSet, TrackID: step.Progress.Track, Pct: step.Progress.Pct})

	case "reset":
		h.apply(engine.Event{Type: engine.EventTypeResetAll})

	case "fail_next":
		h.confirmer.Fail(catalog.NormalizeID(step.FailNext))

	case "offline":
		h.confirmer.offline.Store(true)

	case "restart":
		return h.restart()

	default:
		return fmt.Errorf("exactly one action is required")
	}

	return h.drain()
}

// duration returns override when set, else the catalog duration of id.
// Unknown ids report zero, which the engine ignores.
func (h *Harness) duration(id string, override float64) float64 {
	if override != 0 {
		return override
	}
	ch, _ := h.catalog.Get(id)
	return ch.Duration
}

// apply feeds one step event to the engine and traces the outcome.
// Engine errors are part of the trace, not harness failures.
func (h *Harness) apply(ev engine.Event) {
	out, err := h.engine.Apply(h.ctx, ev)
	h.record(&ev, out, err)
}

// observe traces confirmation results applied while draining. Step
// events are traced by apply.
func (h *Harness) observe(out engine.Outcome) {
	if out.Type == engine.EventTypeConfirmationResult {
		h.record(nil, out, nil)
	}
}

func (h *Harness) record(ev *engine.Event, out engine.Outcome, err error) {
	if out.Type == engine.EventTypePositionObserved {
		changed := out.Verdict != h.lastVerdict
		h.lastVerdict = out.Verdict
		if !changed && !out.SeekCounted && out.Award == nil && err == nil {
			return
		}
	}

	te := TraceEvent{
		Seq:         out.Seq,
		Event:       out.Type.String(),
		Track:       out.TrackID,
		Session:     out.Session,
		TotalPoints: out.TotalPoints,
		Commands:    h.player.Take(),
	}

	switch out.Type {
	case engine.EventTypeTrackActivated:
		te.Started = out.Started

	case engine.EventTypePositionObserved:
		te.Position = float64Ptr(ev.Position)
		te.Verdict = string(out.Verdict)
		te.SeekCounted = out.SeekCounted
		if out.Award != nil {
			te.Award = &TraceAward{
				Points:        out.Award.EffectivePoints,
				PenaltyPoints: out.Award.PenaltyPoints,
				ForwardSeeks:  out.Award.ForwardSeeks,
				PeakRate:      out.Award.PeakRate,
			}
			te.Credited = out.Credited
			te.Progress = float64Ptr(out.Progress)
		}

	case engine.EventTypeExplicitSeek:
		te.Position = float64Ptr(ev.Position)
		te.SeekCounted = out.SeekCounted

	case engine.EventTypeRateChanged:
		te.Rate = float64Ptr(ev.Rate)

	case engine.EventTypeProgressSet:
		te.Progress = float64Ptr(out.Progress)

	case engine.EventTypeConfirmationResult:
		te.Confirmation = string(out.Confirmation)
		te.Progress = float64Ptr(out.Progress)
	}

	if err != nil {
		te.Error = err.Error()
	}
	h.result.Trace = append(h.result.Trace, te)
}

func (h *Harness) captureState() error {
	status := h.engine.Status()
	rows, err := h.store.PendingConfirmations(h.ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}

	records := make([]RecordState, 0, len(status.Records))
	for _, r := range status.Records {
		records = append(records, RecordState{
			Track:          r.ChallengeID,
			Completed:      r.Completed,
			Progress:       r.ProgressPct,
			PointsDeducted: r.PointsDeducted,
			ForwardSeeks:   r.ForwardSeeks,
			PeakRate:       r.PeakRate,
		})
	}

	completed := status.CompletedIDs
	if completed == nil {
		completed = []string{}
	}

	h.result.State = FinalState{
		TotalPoints: status.TotalPoints,
		Completed:   completed,
		Records:     records,
		Pending:     len(status.Pending),
		Outbox:      len(rows),
		Notices:     h.notices,
	}
	return nil
}

func float64Ptr(f float64) *float64 {
	return &f
}

// gatedConfirmer forwards to next unless offline, in which case calls
// block until their context ends. Scripted failures are answered without
// reaching next.
type gatedConfirmer struct {
	next    reconcile.Confirmer
	offline atomic.Bool

	mu    sync.Mutex
	fails map[string]int
}

// Fail makes the next confirmation of id fail.
func (c *gatedConfirmer) Fail(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails[id]++
}

func (c *gatedConfirmer) Confirm(ctx context.Context, id string, points int) error {
	if c.offline.Load() {
		<-ctx.Done()
		return ctx.Err()
	}

	c.mu.Lock()
	failing := c.fails[id] > 0
	if failing {
		c.fails[id]--
	}
	c.mu.Unlock()
	if failing {
		return testutil.ErrScriptedFailure
	}

	return c.next.Confirm(ctx, id, points)
}
