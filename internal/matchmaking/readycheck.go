package matchmaking

import (
	"context"
	"log"
	"time"

	"github.com/arena-gg/matchmaking/internal/metrics"
	"github.com/arena-gg/matchmaking/internal/protocol"
)

// Accept records a participant's acceptance of a pending match. A repeated
// accept is an idempotent no-op. When the second acceptance lands, the match
// leaves the pending index and finalization runs exactly once.
func (s *Service) Accept(ctx context.Context, userID, matchID string) error {
	s.mu.Lock()
	m, ok := s.pending[matchID]
	if !ok {
		s.mu.Unlock()
		return ErrMatchNotFound
	}
	part := m.participant(userID)
	if part == nil {
		s.mu.Unlock()
		return ErrNotParticipant
	}
	if part.Status != StatusPending {
		s.mu.Unlock()
		log.Printf("[matchmaker] repeated accept of match %s by user %s ignored (status=%s)",
			matchID, userID, part.Status)
		return nil
	}
	part.Status = StatusAccepted

	opp := m.opponent(userID)
	if opp.Status != StatusAccepted {
		s.mu.Unlock()
		log.Printf("[matchmaker] user %s accepted match %s, waiting for %s", userID, matchID, opp.UserID)
		return nil
	}

	// Mutual accept. The entry leaves the index before any remote call so a
	// late decline or a reentrant accept observes MatchNotFound instead of
	// triggering a second finalization.
	delete(s.pending, matchID)
	m.stopTimer()
	s.mu.Unlock()

	log.Printf("[matchmaker] match %s accepted by both players", matchID)
	s.finalize(ctx, m)
	return nil
}

// Decline cancels a pending match. The decliner is penalized; the opponent is
// re-queued with priority.
func (s *Service) Decline(ctx context.Context, userID, matchID string) error {
	s.mu.Lock()
	m, ok := s.pending[matchID]
	if !ok {
		s.mu.Unlock()
		return ErrMatchNotFound
	}
	part := m.participant(userID)
	if part == nil {
		s.mu.Unlock()
		return ErrNotParticipant
	}
	part.Status = StatusDeclined
	delete(s.pending, matchID)
	m.stopTimer()
	faulty := []Participant{*part}
	innocent := []Participant{*m.opponent(userID)}
	s.mu.Unlock()

	log.Printf("[matchmaker] user %s declined match %s", userID, matchID)
	s.cancelMatch(ctx, m, faulty, innocent, "declined")
	return nil
}

// expire is the timer callback for a pending match. If the match is already
// gone the timer lost the race against an accept or decline and nothing
// happens. Participants still PENDING at the deadline are the faulty ones.
func (s *Service) expire(matchID string) {
	s.mu.Lock()
	m, ok := s.pending[matchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, matchID)
	var faulty, innocent []Participant
	for _, p := range []Participant{m.Player1, m.Player2} {
		if p.Status == StatusPending {
			faulty = append(faulty, p)
		} else {
			innocent = append(innocent, p)
		}
	}
	s.mu.Unlock()

	log.Printf("[matchmaker] match %s timed out (%d unresponsive)", matchID, len(faulty))
	s.cancelMatch(s.ctx, m, faulty, innocent, "timeout")
}

// cancelMatch penalizes the faulty participants and re-queues the innocent
// ones with priority. Handling is per-participant: a penalty-store failure
// for one player never blocks processing of the other.
func (s *Service) cancelMatch(ctx context.Context, m *PendingMatch, faulty, innocent []Participant, reason string) {
	for _, p := range faulty {
		if err := s.penalties.Add(ctx, p.UserID, s.cfg.PenaltyDuration, "Matchmaking abuse: "+reason); err != nil {
			log.Printf("[matchmaker] penalty for user %s failed: %v", p.UserID, err)
		} else {
			metrics.PenaltiesTotal.Inc()
			log.Printf("[matchmaker] penalized user %s for %s (%s)", p.UserID, s.cfg.PenaltyDuration, reason)
		}
		s.notifier.Send(p.SocketID, protocol.TypeMatchCancelled, protocol.MatchCancelledMsg{
			MatchID: m.ID,
			Reason:  protocol.CancelReasonPenaltyApplied,
		})
	}
	for _, p := range innocent {
		s.notifier.Send(p.SocketID, protocol.TypeMatchCancelled, protocol.MatchCancelledMsg{
			MatchID: m.ID,
			Reason:  protocol.CancelReasonOpponentDeclined,
		})
		s.requeue(ctx, p)
	}

	s.bus.MatchCancelled(m.ID, reason)
	metrics.MatchesTotal.WithLabelValues("cancelled").Inc()
	metrics.ReadyChecksTotal.WithLabelValues(reason).Inc()

	size, pendingCount := s.QueueStats()
	s.publishStats(size, pendingCount)
}

// finalize bridges a mutually accepted match to the Game service. The session
// log write is best effort. A failed game creation re-queues both players
// with priority.
func (s *Service) finalize(ctx context.Context, m *PendingMatch) {
	metrics.ReadyChecksTotal.WithLabelValues("accepted").Inc()

	p1, p2 := m.Player1, m.Player2

	if err := s.sessions.RecordStarted(ctx, m.ID, p1.UserID, p2.UserID, time.Now()); err != nil {
		log.Printf("[matchmaker] session log for match %s failed: %v", m.ID, err)
	}

	res := s.games.CreateGame(ctx, m.ID, p1.UserID, p2.UserID)
	if res.Success {
		confirmed := protocol.MatchConfirmedMsg{
			GameID:    res.GameID,
			Player1ID: p1.UserID,
			Player2ID: p2.UserID,
		}
		s.notifier.Send(p1.SocketID, protocol.TypeMatchConfirmed, confirmed)
		s.notifier.Send(p2.SocketID, protocol.TypeMatchConfirmed, confirmed)
		s.bus.MatchConfirmed(m.ID, res.GameID, p1.UserID, p2.UserID)
		metrics.MatchesTotal.WithLabelValues("confirmed").Inc()
		log.Printf("[matchmaker] match %s confirmed, game %s ready", m.ID, res.GameID)
	} else {
		failed := protocol.MatchFailedMsg{
			MatchID:   m.ID,
			Reason:    protocol.ReasonGameCreationFailed,
			ErrorCode: res.Error,
			Message:   res.Message,
		}
		s.notifier.Send(p1.SocketID, protocol.TypeMatchFailed, failed)
		s.notifier.Send(p2.SocketID, protocol.TypeMatchFailed, failed)
		s.requeue(ctx, p1)
		s.requeue(ctx, p2)
		s.bus.MatchFailed(m.ID, res.Error)
		metrics.MatchesTotal.WithLabelValues("failed").Inc()
		log.Printf("[matchmaker] match %s failed: %s (%s)", m.ID, res.Error, res.Message)
	}

	size, pendingCount := s.QueueStats()
	s.publishStats(size, pendingCount)
}
