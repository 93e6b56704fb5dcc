package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptedFailure is returned by ScriptedConfirmer for failing ids.
var ErrScriptedFailure = errors.New("scripted confirmation failure")

// ConfirmCall records one call to ScriptedConfirmer.
type ConfirmCall struct {
	ChallengeID string
	Points      int
}

// ScriptedConfirmer confirms every award except those scripted to fail.
// Each Fail(id) makes exactly one later confirmation of id fail.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedConfirmer struct {
	mu    sync.Mutex
	fails map[string]int
	calls []ConfirmCall
}

// NewScriptedConfirmer creates a confirmer that fails once for each id
// listed.
func NewScriptedConfirmer(failIDs ...string) *ScriptedConfirmer {
	c := &ScriptedConfirmer{fails: map[string]int{}}
	for _, id := range failIDs {
		c.fails[id]++
	}
	return c
}

// Fail scripts one failure for id.
func (c *ScriptedConfirmer) Fail(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails[id]++
}

// Confirm implements reconcile.Confirmer.
func (c *ScriptedConfirmer) Confirm(_ context.Context, id string, points int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, ConfirmCall{ChallengeID: id, Points: points})
	if c.fails[id] > 0 {
		c.fails[id]--
		return ErrScriptedFailure
	}
	return nil
}

// Calls returns the calls made so far, in call order.
func (c *ScriptedConfirmer) Calls() []ConfirmCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConfirmCall(nil), c.calls...)
}
