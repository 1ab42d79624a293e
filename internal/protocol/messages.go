// Package protocol defines the WebSocket message types and structures used for
// communication between game clients and the matchmaking gateway. All messages
// are serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinQueue    = "join_queue"
	TypeLeaveQueue   = "leave_queue"
	TypeAcceptMatch  = "accept_match"
	TypeDeclineMatch = "decline_match"
	TypePing         = "ping"
)

// Server -> Client message types.
const (
	TypeConnected      = "connected"
	TypeQueueJoined    = "queue_joined"
	TypeQueueLeft      = "queue_left"
	TypeQueueStats     = "queue_stats"
	TypeMatchProposal  = "match_proposal"
	TypeMatchConfirmed = "match_confirmed"
	TypeMatchFailed    = "match_failed"
	TypeMatchCancelled = "match_cancelled"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypePong           = "pong"
)

// Reasons carried by MatchCancelledMsg.
const (
	CancelReasonPenaltyApplied   = "penalty_applied"
	CancelReasonOpponentDeclined = "opponent_declined"
)

// ReasonGameCreationFailed is the reason carried by MatchFailedMsg when the
// game service could not create a game for a mutually accepted match.
const ReasonGameCreationFailed = "game_creation_failed"

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinQueueMsg is sent by the client to enter the matchmaking queue. Elo is
// optional; when omitted, the rating snapshotted at connection time is used.
type JoinQueueMsg struct {
	Type string `json:"type"`
	Elo  *int   `json:"elo,omitempty"`
}

// LeaveQueueMsg is sent by the client to leave the matchmaking queue.
type LeaveQueueMsg struct {
	Type string `json:"type"`
}

// AcceptMatchMsg is sent by the client to accept a proposed match.
type AcceptMatchMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
}

// DeclineMatchMsg is sent by the client to decline a proposed match.
type DeclineMatchMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent by the server once the handshake has been authenticated
// and the player's rating snapshot has been taken.
type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Elo    int    `json:"elo"`
}

// QueueJoinedMsg confirms that the player entered the matchmaking queue.
type QueueJoinedMsg struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Elo       int    `json:"elo"`
	Timestamp int64  `json:"timestamp"`
	Priority  bool   `json:"priority,omitempty"`
}

// QueueLeftMsg confirms that the player left the matchmaking queue.
type QueueLeftMsg struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// QueueStatsMsg is broadcast to all connected clients whenever the queue
// composition changes.
type QueueStatsMsg struct {
	Type    string `json:"type"`
	Size    int    `json:"size"`
	Pending int    `json:"pending"`
}

// MatchProposalMsg starts a ready check: both candidates must accept before
// ExpiresAt (unix milliseconds) or the proposal lapses.
type MatchProposalMsg struct {
	Type        string `json:"type"`
	MatchID     string `json:"matchId"`
	ExpiresAt   int64  `json:"expiresAt"`
	OpponentElo int    `json:"opponentElo"`
}

// MatchConfirmedMsg is sent to both participants once the game instance has
// been created.
type MatchConfirmedMsg struct {
	Type      string `json:"type"`
	GameID    string `json:"gameId"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

// MatchFailedMsg reports that game creation failed after a mutual accept.
// Both participants are returned to the queue with priority.
type MatchFailedMsg struct {
	Type      string `json:"type"`
	MatchID   string `json:"matchId"`
	Reason    string `json:"reason"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message,omitempty"`
}

// MatchCancelledMsg reports that a pending match ended without a game, either
// because the opponent backed out or because the recipient was penalised.
type MatchCancelledMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId"`
	Reason  string `json:"reason"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoinQueue:
		var m JoinQueueMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveQueue:
		var m LeaveQueueMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAcceptMatch:
		var m AcceptMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDeclineMatch:
		var m DeclineMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the *Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
