package matchmaking

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by queue and ready-check operations. The gateway maps these
// to error events on the offending socket.
var (
	// ErrAlreadyQueued means the user is already waiting or is a participant
	// of a pending match.
	ErrAlreadyQueued = errors.New("matchmaking: user already queued or in a pending match")

	// ErrSocketBusy means the socket already backs a queued player.
	ErrSocketBusy = errors.New("matchmaking: socket already has a queued player")

	// ErrMatchNotFound means no pending match exists with the given id.
	ErrMatchNotFound = errors.New("matchmaking: pending match not found")

	// ErrNotParticipant means the user is not one of the match's two players.
	ErrNotParticipant = errors.New("matchmaking: user is not a match participant")
)

// BannedError is returned by AddPlayer when the user has an active penalty.
// It carries the penalty details so callers can tell the user when the ban
// lifts.
type BannedError struct {
	UserID    string
	Reason    string
	ExpiresAt time.Time
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("matchmaking: user %s is banned until %s: %s",
		e.UserID, e.ExpiresAt.Format(time.RFC3339), e.Reason)
}
