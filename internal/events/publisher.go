// Package events publishes matchmaking lifecycle events to NATS so sibling
// services (stats, notification fan-out, anti-abuse tooling) can react without
// coupling to the matchmaker process. Publishing is fire-and-forget; the
// matchmaking flow never blocks on the bus.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for matchmaking lifecycle events.
const (
	SubjectQueueJoined    = "matchmaking.queue.joined"
	SubjectQueueLeft      = "matchmaking.queue.left"
	SubjectMatchProposed  = "matchmaking.match.proposed"
	SubjectMatchConfirmed = "matchmaking.match.confirmed"
	SubjectMatchCancelled = "matchmaking.match.cancelled"
	SubjectMatchFailed    = "matchmaking.match.failed"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "matchmaker",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Publisher emits lifecycle events to NATS. All methods are nil-safe: a nil
// Publisher silently drops events, which keeps the bus optional in tests.
type Publisher struct {
	conn *nats.Conn
}

// Connect establishes the NATS connection with the given config and returns a
// ready publisher. It returns an error if the initial connection fails.
func Connect(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

// QueueEvent is the payload published on queue.joined and queue.left.
type QueueEvent struct {
	UserID    string `json:"userId"`
	Elo       int    `json:"elo,omitempty"`
	Priority  bool   `json:"priority,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// MatchEvent is the payload published on the match.* subjects. Only the
// fields relevant to the subject are populated.
type MatchEvent struct {
	MatchID   string `json:"matchId"`
	GameID    string `json:"gameId,omitempty"`
	Player1ID string `json:"player1Id,omitempty"`
	Player2ID string `json:"player2Id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// QueueJoined publishes a queue.joined event.
func (p *Publisher) QueueJoined(userID string, elo int, priority bool) {
	p.publish(SubjectQueueJoined, QueueEvent{
		UserID:    userID,
		Elo:       elo,
		Priority:  priority,
		Timestamp: time.Now().UnixMilli(),
	})
}

// QueueLeft publishes a queue.left event.
func (p *Publisher) QueueLeft(userID string) {
	p.publish(SubjectQueueLeft, QueueEvent{
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// MatchProposed publishes a match.proposed event.
func (p *Publisher) MatchProposed(matchID, player1ID, player2ID string) {
	p.publish(SubjectMatchProposed, MatchEvent{
		MatchID:   matchID,
		Player1ID: player1ID,
		Player2ID: player2ID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// MatchConfirmed publishes a match.confirmed event.
func (p *Publisher) MatchConfirmed(matchID, gameID, player1ID, player2ID string) {
	p.publish(SubjectMatchConfirmed, MatchEvent{
		MatchID:   matchID,
		GameID:    gameID,
		Player1ID: player1ID,
		Player2ID: player2ID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// MatchCancelled publishes a match.cancelled event.
func (p *Publisher) MatchCancelled(matchID, reason string) {
	p.publish(SubjectMatchCancelled, MatchEvent{
		MatchID:   matchID,
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	})
}

// MatchFailed publishes a match.failed event.
func (p *Publisher) MatchFailed(matchID, errorCode string) {
	p.publish(SubjectMatchFailed, MatchEvent{
		MatchID:   matchID,
		ErrorCode: errorCode,
		Timestamp: time.Now().UnixMilli(),
	})
}

// publish marshals and sends one event. Errors are logged, never returned:
// the bus is observability plumbing, not part of the matchmaking contract.
func (p *Publisher) publish(subject string, v interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// Close drains and closes the NATS connection. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] publisher closed")
}
