package matchmaking

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/arena-gg/matchmaking/internal/events"
	"github.com/arena-gg/matchmaking/internal/gameclient"
	"github.com/arena-gg/matchmaking/internal/metrics"
	"github.com/arena-gg/matchmaking/internal/protocol"
)

// Config holds the matchmaking tuning parameters.
type Config struct {
	TickRate          time.Duration // period of the pairing loop
	BaseTolerance     float64       // base elo spread both sides must accept
	ExpansionInterval time.Duration // wait time that earns one tolerance step
	ExpansionStep     float64       // rangeFactor increment per expansion
	AcceptTimeout     time.Duration // ready-check deadline
	PenaltyDuration   time.Duration // ban length for decline/timeout offenders
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:          time.Second,
		BaseTolerance:     50,
		ExpansionInterval: 10 * time.Second,
		ExpansionStep:     1.0,
		AcceptTimeout:     15 * time.Second,
		PenaltyDuration:   5 * time.Minute,
	}
}

// PenaltyStore looks up and records time-bounded matchmaking bans.
type PenaltyStore interface {
	// Active returns whether the user has an unexpired penalty, along with
	// its expiry and reason when present.
	Active(ctx context.Context, userID string) (bool, time.Time, string, error)

	// Add records a new penalty lasting the given duration.
	Add(ctx context.Context, userID string, duration time.Duration, reason string) error
}

// SessionRecorder appends started matches to the session history.
type SessionRecorder interface {
	RecordStarted(ctx context.Context, matchID, player1ID, player2ID string, startedAt time.Time) error
}

// GameCreator provisions a game instance for a mutually accepted match. The
// result is always typed; transport failures surface as fallback results, not
// errors.
type GameCreator interface {
	CreateGame(ctx context.Context, gameID, player1ID, player2ID string) gameclient.Result
}

// Notifier delivers protocol events to connected players. Implementations must
// tolerate unknown socket ids (the player may have disconnected).
type Notifier interface {
	Send(socketID, event string, payload interface{})
	Broadcast(event string, payload interface{})
	IsConnected(socketID string) bool
}

// Service is the matchmaking engine. A single mutex guards the queue indices;
// remote calls (penalty store, session log, game service) always happen
// outside the lock.
type Service struct {
	cfg Config

	mu              sync.Mutex
	waitingByUser   map[string]*QueuedPlayer
	waitingBySocket map[string]string // socketID -> userID
	pending         map[string]*PendingMatch

	penalties PenaltyStore
	sessions  SessionRecorder
	games     GameCreator
	notifier  Notifier
	bus       *events.Publisher // nil-safe; may be absent in tests

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a matchmaking service. Call Start to run the pairing
// loop; operations like AddPlayer work without it (useful for tests driving
// Tick directly).
func NewService(cfg Config, penalties PenaltyStore, sessions SessionRecorder, games GameCreator, notifier Notifier, bus *events.Publisher) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:             cfg,
		waitingByUser:   make(map[string]*QueuedPlayer),
		waitingBySocket: make(map[string]string),
		pending:         make(map[string]*PendingMatch),
		penalties:       penalties,
		sessions:        sessions,
		games:           games,
		notifier:        notifier,
		bus:             bus,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start launches the matcher loop in a background goroutine.
func (s *Service) Start() {
	go s.matchLoop()
	log.Printf("[matchmaker] service started (tick=%s base_tolerance=%.0f accept_timeout=%s)",
		s.cfg.TickRate, s.cfg.BaseTolerance, s.cfg.AcceptTimeout)
}

// Stop shuts down the matcher loop and stops the expiry timers of any
// still-pending matches so the process can exit without firing late
// penalties. Queue and pending state is in-memory only and simply dropped.
func (s *Service) Stop() {
	s.cancel()

	s.mu.Lock()
	for _, m := range s.pending {
		m.stopTimer()
	}
	s.mu.Unlock()

	log.Println("[matchmaker] service stopped")
}

// matchLoop runs the pairing algorithm on a fixed period until Stop.
func (s *Service) matchLoop() {
	ticker := time.NewTicker(s.cfg.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[matchmaker] match loop stopped")
			return
		case <-ticker.C:
			s.safeTick()
		}
	}
}

// safeTick runs one tick and keeps a panicking tick from killing the loop.
func (s *Service) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[matchmaker] tick panic recovered: %v", r)
		}
	}()
	s.Tick()
}

// AddPlayer enters a player into the waiting queue. It fails with
// *BannedError when the user has an active penalty, ErrAlreadyQueued when the
// user is already waiting or in a pending match, and ErrSocketBusy when the
// socket already backs a queued player. On success the joiner receives
// queue_joined and everyone receives fresh queue_stats.
func (s *Service) AddPlayer(ctx context.Context, userID, socketID string, elo int, priority bool) error {
	banned, expiresAt, reason, err := s.penalties.Active(ctx, userID)
	if err != nil {
		// A penalty-store outage must not freeze the queue; let the join
		// through and leave a trace.
		log.Printf("[matchmaker] penalty lookup for user %s failed (allowing join): %v", userID, err)
	} else if banned {
		return &BannedError{UserID: userID, Reason: reason, ExpiresAt: expiresAt}
	}

	now := time.Now()

	s.mu.Lock()
	if s.userBusyLocked(userID) {
		s.mu.Unlock()
		return ErrAlreadyQueued
	}
	if _, ok := s.waitingBySocket[socketID]; ok {
		s.mu.Unlock()
		return ErrSocketBusy
	}
	p := &QueuedPlayer{
		UserID:      userID,
		SocketID:    socketID,
		Elo:         elo,
		JoinedAt:    now,
		RangeFactor: 1.0,
		Priority:    priority,
	}
	s.waitingByUser[userID] = p
	s.waitingBySocket[socketID] = userID
	size, pendingCount := len(s.waitingByUser), len(s.pending)
	s.mu.Unlock()

	s.notifier.Send(socketID, protocol.TypeQueueJoined, protocol.QueueJoinedMsg{
		UserID:    userID,
		Elo:       elo,
		Timestamp: now.UnixMilli(),
		Priority:  priority,
	})
	s.publishStats(size, pendingCount)
	s.bus.QueueJoined(userID, elo, priority)

	log.Printf("[matchmaker] user %s joined queue elo=%d priority=%v (size=%d)", userID, elo, priority, size)
	return nil
}

// RemovePlayer takes a player out of the waiting queue. The identifier may be
// either a user id or a socket id; both resolve to the same entry. It is
// idempotent and never touches pending matches: a player mid ready-check is
// no longer waiting. Returns true when an entry was removed.
func (s *Service) RemovePlayer(identifier string) bool {
	s.mu.Lock()
	p, ok := s.waitingByUser[identifier]
	if !ok {
		if uid, found := s.waitingBySocket[identifier]; found {
			p, ok = s.waitingByUser[uid], true
		}
	}
	if !ok || p == nil {
		s.mu.Unlock()
		return false
	}
	delete(s.waitingByUser, p.UserID)
	delete(s.waitingBySocket, p.SocketID)
	size, pendingCount := len(s.waitingByUser), len(s.pending)
	s.mu.Unlock()

	s.notifier.Send(p.SocketID, protocol.TypeQueueLeft, protocol.QueueLeftMsg{
		UserID:    p.UserID,
		Timestamp: time.Now().UnixMilli(),
	})
	s.publishStats(size, pendingCount)
	s.bus.QueueLeft(p.UserID)

	log.Printf("[matchmaker] user %s left queue (size=%d)", p.UserID, size)
	return true
}

// QueueStats returns the current number of waiting players and pending
// matches.
func (s *Service) QueueStats() (size, pending int) {
	s.mu.Lock()
	size, pending = len(s.waitingByUser), len(s.pending)
	s.mu.Unlock()
	return size, pending
}

// userBusyLocked reports whether the user is waiting or participates in any
// pending match. Caller must hold s.mu. The pending scan is linear but its
// cardinality is bounded by half the queue size.
func (s *Service) userBusyLocked(userID string) bool {
	if _, ok := s.waitingByUser[userID]; ok {
		return true
	}
	for _, m := range s.pending {
		if m.hasParticipant(userID) {
			return true
		}
	}
	return false
}

// publishStats broadcasts queue_stats and refreshes the gauges.
func (s *Service) publishStats(size, pending int) {
	s.notifier.Broadcast(protocol.TypeQueueStats, protocol.QueueStatsMsg{
		Size:    size,
		Pending: pending,
	})
	metrics.QueueSize.Set(float64(size))
	metrics.PendingMatches.Set(float64(pending))
}

// requeue puts a participant back into the waiting queue with priority after
// an innocent cancellation or a game-creation failure. Best effort: a dead
// socket or a failed AddPlayer is logged and skipped so the other participant
// is still processed.
func (s *Service) requeue(ctx context.Context, p Participant) {
	if !s.notifier.IsConnected(p.SocketID) {
		log.Printf("[matchmaker] not re-queueing user %s: socket %s is gone", p.UserID, p.SocketID)
		return
	}
	if err := s.AddPlayer(ctx, p.UserID, p.SocketID, p.Elo, true); err != nil {
		log.Printf("[matchmaker] re-queue user %s failed: %v", p.UserID, err)
	}
}
