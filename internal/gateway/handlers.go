// Package gateway connects the WebSocket transport to the matchmaking engine.
// Inbound client messages become engine operations, engine notifications
// become frames on the right socket, and a handful of HTTP endpoints expose
// read-only state for ops tooling.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/arena-gg/matchmaking/internal/matchmaking"
	"github.com/arena-gg/matchmaking/internal/protocol"
	"github.com/arena-gg/matchmaking/internal/ratelimit"
	"github.com/arena-gg/matchmaking/internal/ws"
)

// opTimeout bounds the store lookups behind a single client message.
const opTimeout = 3 * time.Second

// Handlers translate parsed client messages into matchmaking operations and
// map engine errors back onto the offending socket. Success responses are the
// engine's job (it notifies through the WSNotifier); the handlers only ever
// answer with error or rate_limited frames.
type Handlers struct {
	engine  *matchmaking.Service
	limiter *ratelimit.Limiter // nil disables join throttling
}

// NewHandlers creates the message handlers for the given engine.
func NewHandlers(engine *matchmaking.Service, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{engine: engine, limiter: limiter}
}

// Register installs the queue and ready-check handlers on the dispatcher.
func (h *Handlers) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeJoinQueue, h.HandleJoinQueue)
	d.Register(protocol.TypeLeaveQueue, h.HandleLeaveQueue)
	d.Register(protocol.TypeAcceptMatch, h.HandleAcceptMatch)
	d.Register(protocol.TypeDeclineMatch, h.HandleDeclineMatch)
}

// HandleJoinQueue enters the player into the matchmaking queue. The rating
// defaults to the handshake snapshot; the client may send an explicit value
// (rating per game mode, say) as long as it is non-negative.
func (h *Handlers) HandleJoinQueue(conn *ws.Connection, msg interface{}) {
	joinMsg, ok := msg.(protocol.JoinQueueMsg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if h.limiter != nil {
		if allowed, _ := h.limiter.Allow(ctx, conn.UserID, ratelimit.RuleJoin); !allowed {
			retry := h.limiter.RetryAfter(ctx, conn.UserID, ratelimit.RuleJoin)
			h.send(conn, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: retry})
			log.Printf("[gateway] join_queue rate limited user=%s retry_after=%ds", conn.UserID, retry)
			return
		}
	}

	elo := conn.Elo
	if joinMsg.Elo != nil {
		elo = *joinMsg.Elo
	}
	if elo < 0 {
		h.sendError(conn, "invalid elo", "elo must be non-negative")
		return
	}

	err := h.engine.AddPlayer(ctx, conn.UserID, conn.ID, elo, false)
	if err == nil {
		return
	}

	var banned *matchmaking.BannedError
	switch {
	case errors.As(err, &banned):
		h.sendError(conn, "temporarily banned from matchmaking",
			fmt.Sprintf("%s; expires %s", banned.Reason, banned.ExpiresAt.UTC().Format(time.RFC3339)))
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		h.sendError(conn, "already in queue", "already_queued")
	case errors.Is(err, matchmaking.ErrSocketBusy):
		h.sendError(conn, "connection already has a queued player", "socket_busy")
	default:
		log.Printf("[gateway] join_queue failed user=%s: %v", conn.UserID, err)
		h.sendError(conn, "failed to join queue", "internal_error")
	}
}

// HandleLeaveQueue removes the player from the queue. Leaving while not
// queued is a no-op; the engine sends queue_left only on an actual removal.
func (h *Handlers) HandleLeaveQueue(conn *ws.Connection, msg interface{}) {
	h.engine.RemovePlayer(conn.UserID)
}

// HandleAcceptMatch accepts a proposed match on the player's behalf.
func (h *Handlers) HandleAcceptMatch(conn *ws.Connection, msg interface{}) {
	acceptMsg, ok := msg.(protocol.AcceptMatchMsg)
	if !ok {
		return
	}
	if _, err := uuid.Parse(acceptMsg.MatchID); err != nil {
		h.sendError(conn, "invalid match id", "bad_match_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch err := h.engine.Accept(ctx, conn.UserID, acceptMsg.MatchID); {
	case err == nil:
	case errors.Is(err, matchmaking.ErrMatchNotFound):
		h.sendError(conn, "match not found", "match_not_found")
	case errors.Is(err, matchmaking.ErrNotParticipant):
		h.sendError(conn, "not a participant of this match", "not_participant")
	default:
		log.Printf("[gateway] accept_match failed user=%s match=%s: %v", conn.UserID, acceptMsg.MatchID, err)
		h.sendError(conn, "failed to accept match", "internal_error")
	}
}

// HandleDeclineMatch declines a proposed match, which penalizes the decliner
// and sends the opponent back to the front of the queue.
func (h *Handlers) HandleDeclineMatch(conn *ws.Connection, msg interface{}) {
	declineMsg, ok := msg.(protocol.DeclineMatchMsg)
	if !ok {
		return
	}
	if _, err := uuid.Parse(declineMsg.MatchID); err != nil {
		h.sendError(conn, "invalid match id", "bad_match_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch err := h.engine.Decline(ctx, conn.UserID, declineMsg.MatchID); {
	case err == nil:
	case errors.Is(err, matchmaking.ErrMatchNotFound):
		h.sendError(conn, "match not found", "match_not_found")
	case errors.Is(err, matchmaking.ErrNotParticipant):
		h.sendError(conn, "not a participant of this match", "not_participant")
	default:
		log.Printf("[gateway] decline_match failed user=%s match=%s: %v", conn.UserID, declineMsg.MatchID, err)
		h.sendError(conn, "failed to decline match", "internal_error")
	}
}

// HandleDisconnect drops the player from the waiting queue when their socket
// goes away. Removal is by socket id so a player who already reconnected and
// re-queued on a fresh socket is not knocked out by the stale callback. A
// player inside a pending match is deliberately left alone: the accept
// timeout decides their fate.
func (h *Handlers) HandleDisconnect(conn *ws.Connection) {
	if h.engine.RemovePlayer(conn.ID) {
		log.Printf("[gateway] user=%s left queue on disconnect", conn.UserID)
	}
}

// send writes a protocol event straight onto the socket.
func (h *Handlers) send(conn *ws.Connection, event string, payload interface{}) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("[gateway] failed to build %s message: %v", event, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[gateway] failed to send %s to user=%s: %v", event, conn.UserID, err)
	}
}

func (h *Handlers) sendError(conn *ws.Connection, message, details string) {
	h.send(conn, protocol.TypeError, protocol.ErrorMsg{Message: message, Details: details})
}
