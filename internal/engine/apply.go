package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/earworm/internal/award"
	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/progress"
	"github.com/roach88/earworm/internal/reconcile"
	"github.com/roach88/earworm/internal/snapshot"
	"github.com/roach88/earworm/internal/store"
)

// Apply processes one event to completion and returns its Outcome.
// CRITICAL: Loop goroutine only. Every step of an award (flag, store
// mutation, ledger credit, persist, dispatch) happens inside this call.
func (e *Engine) Apply(ctx context.Context, ev Event) (Outcome, error) {
	seq := e.clock.Next()
	out := Outcome{Seq: seq, Type: ev.Type}

	var err error
	switch ev.Type {
	case EventTypeTrackActivated:
		err = e.applyActivate(ev, &out)
	case EventTypeTrackEnded:
		e.tracker.End()
	case EventTypePositionObserved:
		err = e.applyPosition(ctx, ev, &out)
	case EventTypeExplicitSeek:
		err = e.applySeek(ev, &out)
	case EventTypeRateChanged:
		err = e.applyRate(ev, &out)
	case EventTypeProgressSet:
		err = e.applyProgressSet(ev, &out)
	case EventTypeResetAll:
		err = e.applyResetAll(ctx, &out)
	case EventTypeConfirmationResult:
		err = e.applyConfirmation(ctx, ev, &out)
	default:
		err = newInvalidEventError(seq, "unknown event type: %d", ev.Type)
	}

	st := e.tracker.Current()
	out.Session = st.Token
	out.ForwardSeeks = st.ForwardSeekCount
	out.PeakRate = st.PeakRate
	out.TotalPoints = e.ledger.TotalPoints()

	if e.observer != nil {
		e.observer(out)
	}
	return out, err
}

func (e *Engine) applyActivate(ev Event, out *Outcome) error {
	id := catalog.NormalizeID(ev.TrackID)
	out.TrackID = id

	if !e.catalog.Has(id) {
		// The previous session must not keep accepting telemetry.
		e.tracker.End()
		return newUnknownChallengeError(id, out.Seq)
	}

	out.Started = e.tracker.Activate(id)
	out.Progress = e.recordProgress(id)
	if out.Started {
		e.logger.Debug("session started",
			"challenge_id", id,
			"session", e.tracker.Current().Token,
			"seq", out.Seq,
		)
	}

	if ev.Command {
		if err := e.player.Load(id); err != nil {
			return fmt.Errorf("player load %s: %w", id, err)
		}
	}
	return nil
}

func (e *Engine) applyPosition(ctx context.Context, ev Event, out *Outcome) error {
	id := catalog.NormalizeID(ev.TrackID)
	out.TrackID = id

	ch, known := e.catalog.Get(id)
	if !known {
		out.Verdict = award.VerdictIgnored
		e.logger.Debug("telemetry for unknown challenge ignored", "challenge_id", id, "seq", out.Seq)
		return nil
	}

	out.SeekCounted = e.tracker.ObservePosition(id, ev.Position)

	rec, _ := e.progress.Record(id)
	st := e.tracker.Current()
	dec := award.Evaluate(e.rules, award.Observation{
		TrackID:  id,
		Position: ev.Position,
		Duration: ev.Duration,
	}, st, award.Challenge{
		BasePoints: ch.BasePoints,
		Completed:  rec.Completed,
	})

	out.Verdict = dec.Verdict
	out.Pct = dec.Pct

	switch dec.Verdict {
	case award.VerdictAwarded:
		return e.grant(ctx, id, dec.Award, out)

	case award.VerdictProgress, award.VerdictDisqualified:
		pct := dec.Pct
		if id == st.ActiveTrackID {
			pct = e.tracker.NotePct(pct)
		}
		e.progress.UpdateProgress(id, pct)

	case award.VerdictIgnored, award.VerdictSpurious, award.VerdictFrozen:
		e.logger.Debug("telemetry not applied",
			"challenge_id", id,
			"verdict", string(dec.Verdict),
			"seq", out.Seq,
		)
	}

	out.Progress = e.recordProgress(id)
	return nil
}

// grant applies an award decision: session flag, completion record,
// ledger credit, one durable commit, then confirmation dispatch.
func (e *Engine) grant(ctx context.Context, id string, a *award.Award, out *Outcome) error {
	if !e.tracker.MarkAwarded() {
		return nil
	}
	st := e.tracker.Current()

	e.progress.MarkComplete(id, progress.Deduction{
		PointsDeducted: a.PenaltyPoints,
		ForwardSeeks:   a.ForwardSeeks,
		PeakRate:       a.PeakRate,
	}, e.now())
	credited := e.ledger.Award(id, a.EffectivePoints)

	out.Award = a
	out.Credited = credited
	out.Progress = e.recordProgress(id)

	e.logger.Info("challenge completed",
		"challenge_id", id,
		"session", st.Token,
		"seq", out.Seq,
		"points", a.EffectivePoints,
		"penalty_points", a.PenaltyPoints,
		"forward_seeks", a.ForwardSeeks,
		"peak_rate", a.PeakRate,
		"credited", credited,
	)

	var enqueue []store.Pending
	var req reconcile.Request
	if credited {
		req = reconcile.Request{ChallengeID: id, Points: a.EffectivePoints, Session: st.Token}
		e.pending[id] = req
		enqueue = append(enqueue, store.Pending{
			ChallengeID: id,
			Points:      a.EffectivePoints,
			Session:     st.Token,
			Seq:         out.Seq,
			CreatedAt:   e.now(),
		})
	}

	persistErr := e.persist(ctx, id, out.Seq, enqueue, nil)

	// The award is optimistic and already visible; confirm it even if the
	// outbox row could not be written.
	if credited {
		e.dispatch(ctx, req)
	}
	return persistErr
}

func (e *Engine) applySeek(ev Event, out *Outcome) error {
	if math.IsNaN(ev.Position) || math.IsInf(ev.Position, 0) || ev.Position < 0 {
		e.logger.Debug("seek target ignored", "position", ev.Position, "seq", out.Seq)
		return nil
	}

	id := catalog.NormalizeID(ev.TrackID)
	if id == "" {
		id = e.tracker.Current().ActiveTrackID
	}
	out.TrackID = id
	out.SeekCounted = e.tracker.ExplicitSeek(id, ev.Position)
	out.Progress = e.recordProgress(id)

	if ev.Command {
		if err := e.player.SeekTo(ev.Position); err != nil {
			return fmt.Errorf("player seek: %w", err)
		}
	}
	return nil
}

func (e *Engine) applyRate(ev Event, out *Outcome) error {
	out.TrackID = e.tracker.Current().ActiveTrackID
	if math.IsNaN(ev.Rate) || math.IsInf(ev.Rate, 0) || ev.Rate <= 0 {
		e.logger.Debug("rate ignored", "rate", ev.Rate, "seq", out.Seq)
		return nil
	}
	e.tracker.RateChanged(ev.Rate)

	if ev.Command {
		if err := e.player.SetRate(ev.Rate); err != nil {
			return fmt.Errorf("player rate: %w", err)
		}
	}
	return nil
}

func (e *Engine) applyProgressSet(ev Event, out *Outcome) error {
	id := catalog.NormalizeID(ev.TrackID)
	out.TrackID = id
	if !e.catalog.Has(id) {
		return newUnknownChallengeError(id, out.Seq)
	}
	e.progress.UpdateProgress(id, ev.Pct)
	out.Progress = e.recordProgress(id)
	return nil
}

func (e *Engine) applyResetAll(ctx context.Context, out *Outcome) error {
	e.progress.ResetAll()
	e.ledger.ResetAll()

	settle := make([]string, 0, len(e.pending))
	for id := range e.pending {
		settle = append(settle, id)
	}
	clear(e.pending)

	e.logger.Info("all progress reset", "seq", out.Seq, "settled", len(settle))
	return e.persist(ctx, "", out.Seq, nil, settle)
}

func (e *Engine) applyConfirmation(ctx context.Context, ev Event, out *Outcome) error {
	if ev.Result == nil {
		return newInvalidEventError(out.Seq, "confirmation event missing result")
	}
	res := *ev.Result
	id := catalog.NormalizeID(res.ChallengeID)
	out.TrackID = id

	req, ok := e.pending[id]
	if !ok || req.Session != res.Session {
		out.Confirmation = ConfirmationStale
		e.logger.Debug("stale confirmation dropped",
			"challenge_id", id,
			"session", res.Session,
			"seq", out.Seq,
		)
		return nil
	}
	delete(e.pending, id)

	switch {
	case res.Abandoned():
		out.Confirmation = ConfirmationAbandoned
		e.logger.Info("confirmation abandoned, left in outbox",
			"challenge_id", id,
			"points", req.Points,
			"seq", out.Seq,
		)
		return nil

	case res.Confirmed():
		out.Confirmation = ConfirmationConfirmed
		e.logger.Info("award confirmed",
			"challenge_id", id,
			"points", req.Points,
			"session", req.Session,
			"seq", out.Seq,
		)
		out.Progress = e.recordProgress(id)
		return e.persist(ctx, id, out.Seq, nil, []string{id})
	}

	e.rollback(id, req.Points)
	out.Confirmation = ConfirmationRolledBack
	out.Progress = e.recordProgress(id)

	e.logger.Warn("award rolled back",
		"challenge_id", id,
		"points", req.Points,
		"session", req.Session,
		"seq", out.Seq,
		"error", res.Err,
	)

	if e.notifier != nil {
		ch, _ := e.catalog.Get(id)
		e.notifier.Notify(Notice{
			Seq:         out.Seq,
			ChallengeID: id,
			Title:       ch.Title,
			Points:      req.Points,
			Reason:      res.Err.Error(),
		})
	}

	return e.persist(ctx, id, out.Seq, nil, []string{id})
}

// rollback is the compensating action for a failed confirmation. Both
// halves are id-keyed and idempotent.
func (e *Engine) rollback(id string, points int) {
	e.ledger.Rollback(id, points)
	e.progress.Reset(id)
}

// dispatch hands a request to the reconciler. The Result re-enters the
// loop as an event.
func (e *Engine) dispatch(ctx context.Context, req reconcile.Request) {
	e.reconciler.Dispatch(ctx, req, func(res reconcile.Result) {
		e.queue.Enqueue(Event{Type: EventTypeConfirmationResult, TrackID: res.ChallengeID, Result: &res})
	})
}

// persist writes both blobs plus outbox changes in one batch.
func (e *Engine) persist(ctx context.Context, id string, seq int64, enqueue []store.Pending, settle []string) error {
	if e.persister == nil {
		return nil
	}

	progressBlob, err := snapshot.EncodeProgress(e.progress.Snapshot())
	if err != nil {
		return newPersistError(id, seq, err)
	}
	ledgerBlob, err := snapshot.EncodeLedger(e.ledger.Snapshot())
	if err != nil {
		return newPersistError(id, seq, err)
	}

	err = e.persister.Commit(ctx, store.Batch{
		Seq: seq,
		Blobs: map[string][]byte{
			snapshot.ProgressBlobName: progressBlob,
			snapshot.LedgerBlobName:   ledgerBlob,
		},
		Enqueue: enqueue,
		Settle:  settle,
	})
	if err != nil {
		e.logger.Error("persist failed", "challenge_id", id, "seq", seq, "error", err)
		return newPersistError(id, seq, err)
	}
	return nil
}

func (e *Engine) recordProgress(id string) float64 {
	rec, _ := e.progress.Record(id)
	return rec.ProgressPct
}
