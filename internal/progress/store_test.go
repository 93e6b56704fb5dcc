package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/snapshot"
)

var completedAt = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Challenge{
		{ID: "t1", Title: "Track 1", Artist: "A", Duration: 120, BasePoints: 300},
		{ID: "t2", Title: "Track 2", Artist: "B", Duration: 90, BasePoints: 150},
	})
	require.NoError(t, err)
	return c
}

func TestNewStore_DefaultsEveryChallenge(t *testing.T) {
	s := NewStore(testCatalog(t), false)

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, Record{ChallengeID: "t1"}, recs[0])
	assert.Equal(t, Record{ChallengeID: "t2"}, recs[1])
}

func TestUpdateProgress_Clamps(t *testing.T) {
	s := NewStore(testCatalog(t), false)

	for _, tt := range []struct{ in, want float64 }{
		{150, 100}, {-10, 0}, {42.5, 42.5}, {0, 0}, {100, 100},
	} {
		require.True(t, s.UpdateProgress("t1", tt.in))
		r, _ := s.Record("t1")
		assert.Equal(t, tt.want, r.ProgressPct, "input %v", tt.in)
	}

	assert.False(t, s.UpdateProgress("missing", 50))
}

func TestUpdateProgress_CompletedStaysAtHundred(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.MarkComplete("t1", Deduction{}, completedAt)

	assert.False(t, s.UpdateProgress("t1", 20))
	r, _ := s.Record("t1")
	assert.Equal(t, 100.0, r.ProgressPct)
}

func TestMarkComplete(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.UpdateProgress("t2", 95)

	require.True(t, s.MarkComplete("t2", Deduction{PointsDeducted: 30, ForwardSeeks: 2, PeakRate: 2.0}, completedAt))

	r, _ := s.Record("t2")
	assert.Equal(t, Record{
		ChallengeID:    "t2",
		Completed:      true,
		ProgressPct:    100,
		PointsDeducted: 30,
		ForwardSeeks:   2,
		PeakRate:       2.0,
		CompletedAt:    completedAt,
	}, r)
}

func TestMarkComplete_CapsDeductionAtBasePoints(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.MarkComplete("t2", Deduction{PointsDeducted: 9999}, completedAt)

	r, _ := s.Record("t2")
	assert.Equal(t, 150, r.PointsDeducted)
}

func TestMarkComplete_NoReearnKeepsFirstCompletion(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.MarkComplete("t1", Deduction{PointsDeducted: 30, ForwardSeeks: 1}, completedAt)

	assert.False(t, s.MarkComplete("t1", Deduction{PointsDeducted: 75, ForwardSeeks: 3}, completedAt.Add(time.Hour)))

	r, _ := s.Record("t1")
	assert.Equal(t, 30, r.PointsDeducted)
	assert.Equal(t, 1, r.ForwardSeeks)
}

func TestMarkComplete_ReearnOverwritesDeductionNotTimestamp(t *testing.T) {
	s := NewStore(testCatalog(t), true)
	s.MarkComplete("t1", Deduction{PointsDeducted: 30, ForwardSeeks: 1}, completedAt)

	assert.True(t, s.MarkComplete("t1", Deduction{PointsDeducted: 0}, completedAt.Add(time.Hour)))

	r, _ := s.Record("t1")
	assert.Equal(t, 0, r.PointsDeducted)
	assert.Equal(t, completedAt, r.CompletedAt)
}

func TestReset(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.MarkComplete("t1", Deduction{PointsDeducted: 30}, completedAt)

	assert.True(t, s.Reset("t1"))
	assert.False(t, s.Reset("t1"))

	r, _ := s.Record("t1")
	assert.Equal(t, Record{ChallengeID: "t1"}, r)
}

func TestResetAll(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.MarkComplete("t1", Deduction{}, completedAt)
	s.UpdateProgress("t2", 50)

	s.ResetAll()

	for _, r := range s.Records() {
		assert.Equal(t, Record{ChallengeID: r.ChallengeID}, r)
	}
}

func TestRestore_MergesCatalogAndBlob(t *testing.T) {
	rate := 2.0
	s := NewStore(testCatalog(t), false)
	s.Restore(snapshot.Progress{
		CompletedChallenges: []string{"t2", "retired"},
		DeductionsByID: map[string]snapshot.Deduction{
			"t2":      {PointsDeducted: 500, ForwardSeeks: 2, PeakRate: &rate, CompletedAt: "2026-10-15T09:30:00Z"},
			"retired": {PointsDeducted: 1},
		},
	})

	t1, _ := s.Record("t1")
	assert.False(t, t1.Completed)

	t2, _ := s.Record("t2")
	assert.True(t, t2.Completed)
	assert.Equal(t, 100.0, t2.ProgressPct)
	assert.Equal(t, 150, t2.PointsDeducted, "deduction capped at base points")
	assert.Equal(t, 2.0, t2.PeakRate)
	assert.True(t, completedAt.Equal(t2.CompletedAt))

	snap := s.Snapshot()
	assert.Equal(t, []string{"t2", "retired"}, snap.CompletedChallenges)
	assert.Equal(t, 1, snap.DeductionsByID["retired"].PointsDeducted)
}

func TestSnapshot_OnlyCompleted(t *testing.T) {
	s := NewStore(testCatalog(t), false)
	s.UpdateProgress("t1", 60)
	s.MarkComplete("t2", Deduction{PointsDeducted: 15, ForwardSeeks: 1, PeakRate: 1.25}, completedAt)

	snap := s.Snapshot()
	assert.Equal(t, []string{"t2"}, snap.CompletedChallenges)
	require.Contains(t, snap.DeductionsByID, "t2")
	d := snap.DeductionsByID["t2"]
	assert.Equal(t, 15, d.PointsDeducted)
	require.NotNil(t, d.PeakRate)
	assert.Equal(t, 1.25, *d.PeakRate)
	assert.Equal(t, "2026-10-15T09:30:00Z", d.CompletedAt)
}
