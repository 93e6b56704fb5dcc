package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/reconcile"
	"github.com/roach88/earworm/internal/rules"
	"github.com/roach88/earworm/internal/store"
	"github.com/roach88/earworm/internal/testutil"
)

const trackDuration = 120.0

var epoch = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// fixture bundles an engine with its scripted collaborators.
type fixture struct {
	engine    *Engine
	store     *store.Store
	confirmer *testutil.ScriptedConfirmer
	player    *testutil.RecordingPlayer
	notices   []Notice
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Challenge{
		{ID: "t1", Title: "Track One", Artist: "A", Duration: trackDuration, BasePoints: 300},
		{ID: "t2", Title: "Track Two", Artist: "B", Duration: trackDuration, BasePoints: 150},
		{ID: "free", Title: "Free Track", Artist: "C", Duration: trackDuration, BasePoints: 0},
	})
	require.NoError(t, err)
	return cat
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, tbl rules.Table, s *store.Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     s,
		confirmer: testutil.NewScriptedConfirmer(),
		player:    &testutil.RecordingPlayer{},
	}

	base := []Option{
		WithReconciler(reconcile.New(f.confirmer)),
		WithPlayer(f.player),
		WithNotifier(NotifierFunc(func(n Notice) { f.notices = append(f.notices, n) })),
		WithTokens(testutil.NewSequentialTokens("s")),
		WithNow(testutil.NewWallClock(epoch, time.Second).Now),
		WithLogger(quietLogger()),
	}
	if s != nil {
		base = append(base, WithPersister(s))
	}

	e, err := New(tbl, testCatalog(t), append(base, opts...)...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) apply(t *testing.T, ev Event) Outcome {
	t.Helper()
	out, err := f.engine.Apply(context.Background(), ev)
	require.NoError(t, err)
	return out
}

func (f *fixture) activate(t *testing.T, id string) Outcome {
	t.Helper()
	return f.apply(t, Event{Type: EventTypeTrackActivated, TrackID: id})
}

func (f *fixture) observe(t *testing.T, id string, pos float64) Outcome {
	t.Helper()
	return f.apply(t, Event{Type: EventTypePositionObserved, TrackID: id, Position: pos, Duration: trackDuration})
}

// playRange observes every whole second from `from` to `to` inclusive and
// returns the outcomes that carried an award.
func (f *fixture) playRange(t *testing.T, id string, from, to int) []Outcome {
	t.Helper()
	var awards []Outcome
	for pos := from; pos <= to; pos++ {
		out := f.observe(t, id, float64(pos))
		if out.Award != nil {
			awards = append(awards, out)
		}
	}
	return awards
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Drain(ctx))
}

var errDiskFull = errors.New("disk full")

// failingPersister wraps a real store and rejects every Commit while
// failing is set. Only the loop goroutine touches it.
type failingPersister struct {
	*store.Store
	failing bool
}

func (p *failingPersister) Commit(ctx context.Context, b store.Batch) error {
	if p.failing {
		return errDiskFull
	}
	return p.Store.Commit(ctx, b)
}
