package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates session tokens "<prefix>-1", "<prefix>-2", ...
//
// The same scenario with a fresh SequentialTokens produces byte-identical
// traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator. An empty prefix becomes
// "session".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "session"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
//
// Implements session.TokenGenerator.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
