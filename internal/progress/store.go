// Package progress holds the per-challenge completion records and the
// user's point ledger.
//
// Both are explicit owned objects. The engine holds one of each and is
// the only writer; nothing here is safe for concurrent use. Every mutation
// is a function of the previous state plus one event and is keyed by
// challenge id, so compensating actions (rollback) can be applied against
// whatever the state has become since the award.
package progress

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/roach88/earworm/internal/catalog"
	"github.com/roach88/earworm/internal/snapshot"
)

// Record is the progress state of one challenge.
type Record struct {
	ChallengeID    string    `json:"challengeId"`
	Completed      bool      `json:"completed"`
	ProgressPct    float64   `json:"progressPct"`
	PointsDeducted int       `json:"pointsDeducted"`
	ForwardSeeks   int       `json:"forwardSeeks"`
	PeakRate       float64   `json:"peakRate,omitempty"` // 0 when unknown
	CompletedAt    time.Time `json:"completedAt,omitzero"`
}

// Deduction is the penalty metadata stored with a completion.
type Deduction struct {
	PointsDeducted int
	ForwardSeeks   int
	PeakRate       float64
}

// Store is the progress and completion store.
type Store struct {
	catalog     *catalog.Catalog
	allowReearn bool
	records     map[string]*Record

	// orphans keeps persisted completions whose challenge is no longer
	// in the catalog so they survive the next save.
	orphans map[string]snapshot.Deduction
}

// NewStore creates a store with a default record per catalog challenge.
func NewStore(cat *catalog.Catalog, allowReearn bool) *Store {
	s := &Store{
		catalog:     cat,
		allowReearn: allowReearn,
		records:     make(map[string]*Record, cat.Len()),
		orphans:     map[string]snapshot.Deduction{},
	}
	for _, id := range cat.IDs() {
		s.records[id] = &Record{ChallengeID: id}
	}
	return s
}

// Record returns a copy of the record for id.
func (s *Store) Record(id string) (Record, bool) {
	r, ok := s.records[catalog.NormalizeID(id)]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Records returns copies of all records in catalog order.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, id := range s.catalog.IDs() {
		out = append(out, *s.records[id])
	}
	return out
}

// UpdateProgress stores pct clamped to [0, 100]. Completed records stay at
// 100. It returns false for unknown ids and completed records.
func (s *Store) UpdateProgress(id string, pct float64) bool {
	r, ok := s.records[catalog.NormalizeID(id)]
	if !ok || r.Completed {
		return false
	}
	r.ProgressPct = Clamp(pct)
	return true
}

// MarkComplete records a completion with its penalty metadata. A record
// that is already completed is only overwritten when re-earning is
// allowed, and its CompletedAt never changes. It returns false when
// nothing was written.
func (s *Store) MarkComplete(id string, d Deduction, at time.Time) bool {
	id = catalog.NormalizeID(id)
	r, ok := s.records[id]
	if !ok {
		return false
	}
	if r.Completed && !s.allowReearn {
		return false
	}

	ch, _ := s.catalog.Get(id)
	r.PointsDeducted = clampInt(d.PointsDeducted, 0, ch.BasePoints)
	r.ForwardSeeks = max(d.ForwardSeeks, 0)
	r.PeakRate = d.PeakRate
	r.ProgressPct = 100
	if !r.Completed {
		r.CompletedAt = at.UTC()
	}
	r.Completed = true
	return true
}

// Reset returns one challenge to incomplete with zero progress. It is
// idempotent and returns whether anything changed.
func (s *Store) Reset(id string) bool {
	r, ok := s.records[catalog.NormalizeID(id)]
	if !ok {
		return false
	}
	if *r == (Record{ChallengeID: r.ChallengeID}) {
		return false
	}
	*r = Record{ChallengeID: r.ChallengeID}
	return true
}

// ResetAll clears completion and deduction state for every challenge.
func (s *Store) ResetAll() {
	for id := range s.records {
		s.records[id] = &Record{ChallengeID: id}
	}
	s.orphans = map[string]snapshot.Deduction{}
}

// Restore merges a persisted blob with the catalog. Catalog entries that
// the blob does not mention stay incomplete.
func (s *Store) Restore(p snapshot.Progress) {
	s.ResetAll()
	for _, id := range p.CompletedChallenges {
		d := p.DeductionsByID[id]
		r, ok := s.records[id]
		if !ok {
			s.orphans[id] = d
			continue
		}
		ch, _ := s.catalog.Get(id)
		r.Completed = true
		r.ProgressPct = 100
		r.PointsDeducted = clampInt(d.PointsDeducted, 0, ch.BasePoints)
		r.ForwardSeeks = d.ForwardSeeks
		if d.PeakRate != nil {
			r.PeakRate = *d.PeakRate
		}
		if d.CompletedAt != "" {
			if ts, err := time.Parse(time.RFC3339Nano, d.CompletedAt); err == nil {
				r.CompletedAt = ts
			}
		}
	}
}

// Snapshot returns the durable part of the store.
func (s *Store) Snapshot() snapshot.Progress {
	p := snapshot.EmptyProgress()
	for _, id := range s.catalog.IDs() {
		r := s.records[id]
		if !r.Completed {
			continue
		}
		d := snapshot.Deduction{
			PointsDeducted: r.PointsDeducted,
			ForwardSeeks:   r.ForwardSeeks,
		}
		if r.PeakRate > 0 {
			rate := r.PeakRate
			d.PeakRate = &rate
		}
		if !r.CompletedAt.IsZero() {
			d.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
		p.CompletedChallenges = append(p.CompletedChallenges, id)
		p.DeductionsByID[id] = d
	}
	for _, id := range slices.Sorted(maps.Keys(s.orphans)) {
		p.CompletedChallenges = append(p.CompletedChallenges, id)
		p.DeductionsByID[id] = s.orphans[id]
	}
	return p
}

// Clamp bounds a progress percentage to [0, 100]. NaN becomes 0.
func Clamp(pct float64) float64 {
	if math.IsNaN(pct) {
		return 0
	}
	return math.Max(0, math.Min(100, pct))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
