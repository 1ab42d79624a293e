// Package matchmaking implements the tick-driven pairing engine: an in-memory
// queue of waiting players, a periodic matcher with time-adaptive rating
// tolerance, and a ready-check state machine that hands confirmed pairs to the
// Game service.
package matchmaking

import "time"

// QueuedPlayer is one waiting participant. The elo is a frozen snapshot taken
// when the player joined; it does not track rating changes while queued.
type QueuedPlayer struct {
	UserID      string
	SocketID    string
	Elo         int
	JoinedAt    time.Time
	RangeFactor float64 // tolerance multiplier, starts at 1.0 and only grows
	Priority    bool    // set when re-queued after an innocent cancellation
}
