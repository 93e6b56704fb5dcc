package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallClock_Steps(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewWallClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, int64(2), c.Calls())

	c.Reset()
	assert.Equal(t, start, c.Now())
}

func TestWallClock_ZeroStepIsFrozen(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	c := NewWallClock(start, 0)
	assert.Equal(t, c.Now(), c.Now())
}

func TestSequentialTokens(t *testing.T) {
	g := NewSequentialTokens("")
	assert.Equal(t, "session-1", g.Generate())
	assert.Equal(t, "session-2", g.Generate())

	g = NewSequentialTokens("s")
	assert.Equal(t, "s-1", g.Generate())
}

func TestSequentialTokens_ConcurrentUnique(t *testing.T) {
	g := NewSequentialTokens("t")
	const n = 200

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := g.Generate()
			mu.Lock()
			seen[tok] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestScriptedConfirmer_FailsOncePerScript(t *testing.T) {
	c := NewScriptedConfirmer("a")
	ctx := context.Background()

	require.ErrorIs(t, c.Confirm(ctx, "a", 10), ErrScriptedFailure)
	require.NoError(t, c.Confirm(ctx, "a", 10))
	require.NoError(t, c.Confirm(ctx, "b", 5))

	c.Fail("b")
	require.ErrorIs(t, c.Confirm(ctx, "b", 5), ErrScriptedFailure)

	assert.Equal(t, []ConfirmCall{
		{ChallengeID: "a", Points: 10},
		{ChallengeID: "a", Points: 10},
		{ChallengeID: "b", Points: 5},
		{ChallengeID: "b", Points: 5},
	}, c.Calls())
}

func TestRecordingPlayer(t *testing.T) {
	p := &RecordingPlayer{}
	require.NoError(t, p.Load("challenge-1"))
	require.NoError(t, p.SeekTo(100))
	require.NoError(t, p.SetRate(1.25))

	assert.Equal(t, []string{"load challenge-1", "seek 100", "rate 1.25"}, p.Commands())
	assert.Equal(t, 3, len(p.Take()))
	assert.Empty(t, p.Commands())
}
