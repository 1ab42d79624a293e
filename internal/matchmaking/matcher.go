package matchmaking

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arena-gg/matchmaking/internal/metrics"
	"github.com/arena-gg/matchmaking/internal/protocol"
)

// proposal carries a freshly formed pair out of the lock so notifications can
// be sent without holding it.
type proposal struct {
	matchID   string
	expiresAt time.Time
	p1, p2    Participant
}

// Tick runs one pass of the pairing algorithm. Candidates are sorted with
// priority players first, then ascending elo; the scan pairs each unmatched
// player with the first later candidate whose rating sits within both sides'
// tolerance. The tolerance is BaseTolerance scaled by the player's
// rangeFactor, doubled on the scanning side for priority players. Pairs move
// from the waiting queue into pending matches with an armed expiration timer.
//
// Exported so tests can drive the matcher deterministically instead of
// waiting on the ticker.
func (s *Service) Tick() {
	started := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	proposals, size, pendingCount := s.matchRound(started)
	if len(proposals) == 0 {
		return
	}

	for _, pr := range proposals {
		s.announceProposal(pr)
	}
	s.publishStats(size, pendingCount)
}

// matchRound scans the waiting queue and moves every pair it forms into a
// pending match. The lock is released by defer so a panicking round cannot
// strand it.
func (s *Service) matchRound(now time.Time) (proposals []proposal, size, pendingCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waitingByUser) < 2 {
		return nil, len(s.waitingByUser), len(s.pending)
	}

	candidates := make([]*QueuedPlayer, 0, len(s.waitingByUser))
	for _, p := range s.waitingByUser {
		candidates = append(candidates, p)
	}

	// User id breaks ties so the order is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority
		}
		if a.Elo != b.Elo {
			return a.Elo < b.Elo
		}
		return a.UserID < b.UserID
	})

	matched := make(map[string]bool)

	for i, a := range candidates {
		if matched[a.UserID] {
			continue
		}

		// Waiting long enough earns a permanent tolerance expansion.
		wait := now.Sub(a.JoinedAt)
		if wait > time.Duration(float64(s.cfg.ExpansionInterval)*a.RangeFactor) {
			a.RangeFactor += s.cfg.ExpansionStep
		}

		tolA := s.cfg.BaseTolerance * a.RangeFactor
		if a.Priority {
			tolA *= 2
		}

		for _, b := range candidates[i+1:] {
			if matched[b.UserID] {
				continue
			}
			eloDiff := math.Abs(float64(a.Elo) - float64(b.Elo))
			tolB := s.cfg.BaseTolerance * b.RangeFactor
			if eloDiff <= math.Min(tolA, tolB) {
				matched[a.UserID] = true
				matched[b.UserID] = true
				proposals = append(proposals, s.proposeLocked(now, a, b))
				break
			}
		}
	}

	return proposals, len(s.waitingByUser), len(s.pending)
}

// proposeLocked moves a matched pair from the waiting queue into a pending
// match and arms the expiration timer. Caller must hold s.mu.
func (s *Service) proposeLocked(now time.Time, a, b *QueuedPlayer) proposal {
	delete(s.waitingByUser, a.UserID)
	delete(s.waitingBySocket, a.SocketID)
	delete(s.waitingByUser, b.UserID)
	delete(s.waitingBySocket, b.SocketID)

	m := &PendingMatch{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.AcceptTimeout),
		Player1:   Participant{UserID: a.UserID, SocketID: a.SocketID, Elo: a.Elo, Priority: a.Priority, Status: StatusPending},
		Player2:   Participant{UserID: b.UserID, SocketID: b.SocketID, Elo: b.Elo, Priority: b.Priority, Status: StatusPending},
	}
	s.pending[m.ID] = m

	matchID := m.ID
	m.timer = time.AfterFunc(s.cfg.AcceptTimeout, func() { s.expire(matchID) })

	return proposal{matchID: m.ID, expiresAt: m.ExpiresAt, p1: m.Player1, p2: m.Player2}
}

// announceProposal emits match_proposal to both participants; each side sees
// the opponent's elo.
func (s *Service) announceProposal(pr proposal) {
	expiresMs := pr.expiresAt.UnixMilli()
	s.notifier.Send(pr.p1.SocketID, protocol.TypeMatchProposal, protocol.MatchProposalMsg{
		MatchID:     pr.matchID,
		ExpiresAt:   expiresMs,
		OpponentElo: pr.p2.Elo,
	})
	s.notifier.Send(pr.p2.SocketID, protocol.TypeMatchProposal, protocol.MatchProposalMsg{
		MatchID:     pr.matchID,
		ExpiresAt:   expiresMs,
		OpponentElo: pr.p1.Elo,
	})
	s.bus.MatchProposed(pr.matchID, pr.p1.UserID, pr.p2.UserID)
	metrics.MatchesTotal.WithLabelValues("proposed").Inc()

	log.Printf("[matchmaker] proposed match %s: %s (elo=%d) vs %s (elo=%d)",
		pr.matchID, pr.p1.UserID, pr.p1.Elo, pr.p2.UserID, pr.p2.Elo)
}
