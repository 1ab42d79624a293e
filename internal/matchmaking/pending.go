package matchmaking

import "time"

// AcceptStatus tracks one participant's reply during a ready check.
type AcceptStatus int

const (
	StatusPending AcceptStatus = iota
	StatusAccepted
	StatusDeclined
)

// String returns the status name used in logs.
func (s AcceptStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusDeclined:
		return "DECLINED"
	default:
		return "UNKNOWN"
	}
}

// Participant is a frozen snapshot of a queued player inside a pending match.
type Participant struct {
	UserID   string
	SocketID string
	Elo      int
	Priority bool
	Status   AcceptStatus
}

// PendingMatch is an accept/decline session between two players. It is created
// by the matcher tick and destroyed on mutual accept, any decline, or when the
// expiration timer fires.
type PendingMatch struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Player1   Participant
	Player2   Participant

	timer *time.Timer
}

// participant returns a pointer to the participant with the given user id, or
// nil if the user is not part of this match.
func (m *PendingMatch) participant(userID string) *Participant {
	switch userID {
	case m.Player1.UserID:
		return &m.Player1
	case m.Player2.UserID:
		return &m.Player2
	}
	return nil
}

// opponent returns a pointer to the other participant, or nil if the user is
// not part of this match.
func (m *PendingMatch) opponent(userID string) *Participant {
	switch userID {
	case m.Player1.UserID:
		return &m.Player2
	case m.Player2.UserID:
		return &m.Player1
	}
	return nil
}

// hasParticipant reports whether the user is one of the match's two players.
func (m *PendingMatch) hasParticipant(userID string) bool {
	return m.Player1.UserID == userID || m.Player2.UserID == userID
}

// stopTimer cancels the expiration timer. Safe to call after the timer has
// fired; the expiry callback re-checks match membership before acting.
func (m *PendingMatch) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
}
