package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Pending is an optimistic award awaiting remote confirmation.
type Pending struct {
	ChallengeID string
	Points      int
	Session     string
	Seq         int64
	CreatedAt   time.Time
}

// Batch is one atomic write: blob replacements plus outbox changes.
type Batch struct {
	// Seq is the engine's logical seq for this write.
	Seq int64

	// Blobs maps blob name to its new body.
	Blobs map[string][]byte

	// Enqueue adds (or replaces) pending confirmations.
	Enqueue []Pending

	// Settle removes pending confirmations by challenge id.
	Settle []string
}

// LoadBlob returns the body of the named blob, or nil if it was never
// written.
func (s *Store) LoadBlob(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM blobs WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", name, err)
	}
	return body, nil
}

// Commit applies a batch in a single transaction. Settling an id with no
// pending row is not an error.
func (s *Store) Commit(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Sorted for a stable statement order.
	for _, name := range slices.Sorted(maps.Keys(b.Blobs)) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blobs (name, body, seq, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				body = excluded.body,
				seq = excluded.seq,
				updated_at = excluded.updated_at
		`, name, b.Blobs[name], b.Seq, now)
		if err != nil {
			return fmt.Errorf("commit: write blob %s: %w", name, err)
		}
	}

	for _, p := range b.Enqueue {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_confirmations (challenge_id, points, session, seq, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(challenge_id) DO UPDATE SET
				points = excluded.points,
				session = excluded.session,
				seq = excluded.seq,
				created_at = excluded.created_at
		`, p.ChallengeID, p.Points, p.Session, p.Seq, createdAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("commit: enqueue %s: %w", p.ChallengeID, err)
		}
	}

	for _, id := range b.Settle {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_confirmations WHERE challenge_id = ?`, id); err != nil {
			return fmt.Errorf("commit: settle %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PendingConfirmations returns the outbox in replay order.
// Returns an empty slice (not nil) when nothing is pending.
func (s *Store) PendingConfirmations(ctx context.Context) ([]Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT challenge_id, points, session, seq, created_at
		FROM pending_confirmations
		ORDER BY seq ASC, challenge_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending confirmations: %w", err)
	}
	defer rows.Close()

	pending := []Pending{}
	for rows.Next() {
		var p Pending
		var createdAt string
		if err := rows.Scan(&p.ChallengeID, &p.Points, &p.Session, &p.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending confirmation: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			p.CreatedAt = ts
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending confirmations: %w", err)
	}
	return pending, nil
}

// LastSeq returns the highest seq written to the store, or 0 for an empty
// database. The engine resumes its clock from here.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM blobs
			UNION ALL
			SELECT seq FROM pending_confirmations
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}
