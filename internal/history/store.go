// Package history appends matchmaking outcomes to the session log:
//
//	matchmaking_sessions(id, player_1_id, player_2_id, status, started_at,
//	                     ended_at, metadata)
//
// The matchmaker only ever inserts; downstream services own the rest of the
// row lifecycle (ended_at, metadata, terminal statuses).
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// StatusStarted is the status a session row is born with.
const StatusStarted = "STARTED"

// Session is one matchmaking_sessions row.
type Session struct {
	ID        string         `db:"id"`
	Player1ID string         `db:"player_1_id"`
	Player2ID string         `db:"player_2_id"`
	Status    string         `db:"status"`
	StartedAt time.Time      `db:"started_at"`
	EndedAt   sql.NullTime   `db:"ended_at"`
	Metadata  sql.NullString `db:"metadata"`
}

// Store appends to the matchmaking session log in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a session log store using the provided database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// RecordStarted inserts a session row for a match whose ready check completed.
// The match id doubles as the row id, so a replayed insert fails on the
// primary key instead of forking the log.
func (s *Store) RecordStarted(ctx context.Context, matchID, player1ID, player2ID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matchmaking_sessions (id, player_1_id, player_2_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`, matchID, player1ID, player2ID, StatusStarted, startedAt)
	if err != nil {
		return fmt.Errorf("history: insert session %s: %w", matchID, err)
	}
	return nil
}

// Recent returns the latest session rows, newest first. Used by the admin
// surface for a quick look at what the matchmaker has been producing.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	var sessions []Session
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT id, player_1_id, player_2_id, status, started_at, ended_at, metadata
		FROM matchmaking_sessions
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent sessions: %w", err)
	}
	return sessions, nil
}
