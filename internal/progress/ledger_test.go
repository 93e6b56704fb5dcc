package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/earworm/internal/snapshot"
)

func TestLedger_AwardIsIdempotentPerID(t *testing.T) {
	l := NewLedger()

	assert.True(t, l.Award("t1", 300))
	assert.False(t, l.Award("t1", 300))

	assert.Equal(t, 300, l.TotalPoints())
	assert.Equal(t, []string{"t1"}, l.CompletedIDs())
}

func TestLedger_Rollback(t *testing.T) {
	l := NewLedger()
	l.Award("t1", 270)
	l.Award("t2", 100)

	assert.True(t, l.Rollback("t1", 270))
	assert.Equal(t, 100, l.TotalPoints())
	assert.Equal(t, []string{"t2"}, l.CompletedIDs())
	assert.False(t, l.Has("t1"))
}

func TestLedger_RollbackTwiceEqualsOnce(t *testing.T) {
	l := NewLedger()
	l.Award("t1", 270)
	l.Award("t2", 100)

	l.Rollback("t1", 270)
	once := l.Snapshot()

	assert.False(t, l.Rollback("t1", 270))
	assert.Equal(t, once, l.Snapshot())
}

func TestLedger_RollbackFloorsAtZero(t *testing.T) {
	l := NewLedger()
	l.Restore(snapshot.Ledger{TotalPoints: 50, CompletedChallenges: []string{"t1"}})

	l.Rollback("t1", 270)
	assert.Equal(t, 0, l.TotalPoints())
}

func TestLedger_NegativePointsIgnored(t *testing.T) {
	l := NewLedger()
	l.Award("t1", -5)
	assert.Equal(t, 0, l.TotalPoints())
}

func TestLedger_RestoreAndSnapshot(t *testing.T) {
	l := NewLedger()
	l.Restore(snapshot.Ledger{TotalPoints: 450, CompletedChallenges: []string{"t1", "t2", "t1"}})

	assert.True(t, l.Has("t2"))
	assert.Equal(t, snapshot.Ledger{
		Version:             snapshot.CurrentVersion,
		TotalPoints:         450,
		CompletedChallenges: []string{"t1", "t2"},
	}, l.Snapshot())

	l.ResetAll()
	assert.Equal(t, snapshot.EmptyLedger(), l.Snapshot())
}
