// Package penalty persists matchmaking penalties in PostgreSQL. A penalty is
// a time-bounded queue ban:
//
//	penalties(id, user_id, reason, created_at, expires_at)
//
// The active penalty for a user is the one with the latest expiry still in
// the future. Rows are only ever rewritten by Revoke, which moves the expiry
// into the past to lift a ban early. Expired rows are retained for audit and
// reaped by DeleteExpired.
package penalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is one penalties row.
type Record struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Store manages penalty records in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a penalty store using the provided database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Active checks whether the user has an unexpired penalty.
// Returns (active, expiresAt, reason, error). If the user has no active
// penalty, active is false and the other return values are zero/empty.
// Database errors are returned so callers can decide how to handle them
// (the recommended policy is fail-open).
func (s *Store) Active(ctx context.Context, userID string) (bool, time.Time, string, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT id, user_id, reason, created_at, expires_at
		FROM penalties
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1`, userID, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, "", nil
	}
	if err != nil {
		return false, time.Time{}, "", fmt.Errorf("penalty: lookup for user %s: %w", userID, err)
	}
	return true, rec.ExpiresAt, rec.Reason, nil
}

// Add records a penalty on the user lasting the given duration from now.
func (s *Store) Add(ctx context.Context, userID string, duration time.Duration, reason string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO penalties (user_id, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`, userID, reason, now, now.Add(duration))
	if err != nil {
		return fmt.Errorf("penalty: insert for user %s: %w", userID, err)
	}
	return nil
}

// Revoke expires all of the user's active penalties immediately and returns
// how many were lifted. The rows stay in the history; Active simply stops
// matching them.
func (s *Store) Revoke(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE penalties SET expires_at = $2
		WHERE user_id = $1 AND expires_at > $2`, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("penalty: revoke for user %s: %w", userID, err)
	}
	return res.RowsAffected()
}

// History returns the user's most recent penalties, newest first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	var recs []Record
	err := s.db.SelectContext(ctx, &recs, `
		SELECT id, user_id, reason, created_at, expires_at
		FROM penalties
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("penalty: history for user %s: %w", userID, err)
	}
	return recs, nil
}

// DeleteExpired removes penalties that expired before the cutoff and returns
// how many rows were removed.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM penalties WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("penalty: delete expired: %w", err)
	}
	return res.RowsAffected()
}
