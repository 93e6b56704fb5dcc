package progress

import (
	"slices"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/snapshot"
)

// Ledger is the user's point total and completed challenge set.
type Ledger struct {
	total     int
	completed []string
	index     map[string]bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{index: map[string]bool{}}
}

// Award credits points for id. It is idempotent per id: if id is already
// in the completed set nothing changes and Award returns false.
func (l *Ledger) Award(id string, points int) bool {
	id = catalog.NormalizeID(id)
	if l.index[id] {
		return false
	}
	l.index[id] = true
	l.completed = append(l.completed, id)
	l.total += max(points, 0)
	return true
}

// Rollback reverses an award for id: subtracts points (floored at zero)
// and removes id from the completed set. Rolling back an id that is not
// in the set is a no-op, so applying the same rollback twice subtracts
// once.
func (l *Ledger) Rollback(id string, points int) bool {
	id = catalog.NormalizeID(id)
	if !l.index[id] {
		return false
	}
	delete(l.index, id)
	l.completed = slices.DeleteFunc(l.completed, func(c string) bool { return c == id })
	l.total = max(l.total-max(points, 0), 0)
	return true
}

// Has reports whether id is in the completed set.
func (l *Ledger) Has(id string) bool {
	return l.index[catalog.NormalizeID(id)]
}

// TotalPoints returns the point balance.
func (l *Ledger) TotalPoints() int {
	return l.total
}

// CompletedIDs returns the completed set in award order.
func (l *Ledger) CompletedIDs() []string {
	return slices.Clone(l.completed)
}

// ResetAll zeroes the ledger.
func (l *Ledger) ResetAll() {
	l.total = 0
	l.completed = nil
	l.index = map[string]bool{}
}

// Restore replaces the ledger with a persisted blob.
func (l *Ledger) Restore(s snapshot.Ledger) {
	l.ResetAll()
	l.total = max(s.TotalPoints, 0)
	for _, id := range s.CompletedChallenges {
		if l.index[id] {
			continue
		}
		l.index[id] = true
		l.completed = append(l.completed, id)
	}
}

// Snapshot returns the ledger blob.
func (l *Ledger) Snapshot() snapshot.Ledger {
	s := snapshot.EmptyLedger()
	s.TotalPoints = l.total
	s.CompletedChallenges = append(s.CompletedChallenges, l.completed...)
	return s
}
