package testutil

import (
	"fmt"
	"sync"
)

// RecordingPlayer records playback commands as strings such as
// "load challenge-1", "seek 100" and "rate 2".
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingPlayer struct {
	mu       sync.Mutex
	commands []string
}

// Load implements engine.Player.
func (p *RecordingPlayer) Load(trackID string) error {
	p.record("load " + trackID)
	return nil
}

// SeekTo implements engine.Player.
func (p *RecordingPlayer) SeekTo(position float64) error {
	p.record(fmt.Sprintf("seek %g", position))
	return nil
}

// SetRate implements engine.Player.
func (p *RecordingPlayer) SetRate(rate float64) error {
	p.record(fmt.Sprintf("rate %g", rate))
	return nil
}

func (p *RecordingPlayer) record(cmd string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, cmd)
}

// Commands returns the recorded commands in order.
func (p *RecordingPlayer) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// Take returns the recorded commands and clears the record.
func (p *RecordingPlayer) Take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.commands
	p.commands = nil
	return out
}
