package gateway

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/arena-gg/matchmaking/internal/gameclient"
	"github.com/arena-gg/matchmaking/internal/matchmaking"
	"github.com/arena-gg/matchmaking/internal/protocol"
	"github.com/arena-gg/matchmaking/internal/ws"
)

// ---------------------------------------------------------------------------
// Engine stubs
// ---------------------------------------------------------------------------

type stubPenalties struct {
	bannedUntil time.Time
	reason      string
}

func (s *stubPenalties) Active(ctx context.Context, userID string) (bool, time.Time, string, error) {
	if s.bannedUntil.After(time.Now()) {
		return true, s.bannedUntil, s.reason, nil
	}
	return false, time.Time{}, "", nil
}

func (s *stubPenalties) Add(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return nil
}

type stubSessions struct{}

func (stubSessions) RecordStarted(ctx context.Context, matchID, player1ID, player2ID string, startedAt time.Time) error {
	return nil
}

type stubGames struct{}

func (stubGames) CreateGame(ctx context.Context, gameID, player1ID, player2ID string) gameclient.Result {
	return gameclient.Result{Success: true, GameID: gameID}
}

type sentEvent struct {
	event   string
	payload interface{}
}

// recordingNotifier captures engine notifications so tests can assert on the
// events a handler indirectly triggers.
type recordingNotifier struct {
	mu         sync.Mutex
	sent       map[string][]sentEvent
	broadcasts []sentEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]sentEvent)}
}

func (n *recordingNotifier) Send(socketID, event string, payload interface{}) {
	n.mu.Lock()
	n.sent[socketID] = append(n.sent[socketID], sentEvent{event, payload})
	n.mu.Unlock()
}

func (n *recordingNotifier) Broadcast(event string, payload interface{}) {
	n.mu.Lock()
	n.broadcasts = append(n.broadcasts, sentEvent{event, payload})
	n.mu.Unlock()
}

func (n *recordingNotifier) IsConnected(socketID string) bool { return true }

func (n *recordingNotifier) eventsFor(socketID, event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.sent[socketID] {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

func newTestHandlers(t *testing.T, penalties matchmaking.PenaltyStore) (*Handlers, *matchmaking.Service, *recordingNotifier) {
	t.Helper()
	if penalties == nil {
		penalties = &stubPenalties{}
	}
	notifier := newRecordingNotifier()
	engine := matchmaking.NewService(matchmaking.DefaultConfig(), penalties, stubSessions{}, stubGames{}, notifier, nil)
	t.Cleanup(engine.Stop)
	return NewHandlers(engine, nil), engine, notifier
}

// pipeConn builds a Connection over an in-memory pipe and pumps every frame
// the handler writes into the returned channel, so writes never block.
func pipeConn(t *testing.T, userID string, elo int) (*ws.Connection, <-chan []byte) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})

	conn := &ws.Connection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Elo:       elo,
		Conn:      server,
		CreatedAt: time.Now(),
		LastPing:  time.Now(),
	}

	frames := make(chan []byte, 16)
	go func() {
		for {
			data, err := wsutil.ReadServerText(client)
			if err != nil {
				close(frames)
				return
			}
			frames <- data
		}
	}()
	return conn, frames
}

func nextFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case data, ok := <-frames:
		if !ok {
			t.Fatal("frame channel closed")
		}
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil
}

func errorFrame(t *testing.T, frames <-chan []byte) protocol.ErrorMsg {
	t.Helper()
	data := nextFrame(t, frames)
	var msg protocol.ErrorMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	if msg.Type != protocol.TypeError {
		t.Fatalf("expected error frame, got %q (%s)", msg.Type, data)
	}
	return msg
}

func assertNoFrame(t *testing.T, frames <-chan []byte) {
	t.Helper()
	select {
	case data, ok := <-frames:
		if ok {
			t.Fatalf("unexpected frame: %s", data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// ---------------------------------------------------------------------------
// join_queue
// ---------------------------------------------------------------------------

func TestHandleJoinQueue_EntersQueueWithSnapshotElo(t *testing.T) {
	h, engine, notifier := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})

	if size, pending := engine.QueueStats(); size != 1 || pending != 0 {
		t.Fatalf("queue stats = (%d, %d), want (1, 0)", size, pending)
	}

	joined := notifier.eventsFor(conn.ID, protocol.TypeQueueJoined)
	if len(joined) != 1 {
		t.Fatalf("queue_joined events = %d, want 1", len(joined))
	}
	payload, ok := joined[0].payload.(protocol.QueueJoinedMsg)
	if !ok {
		t.Fatalf("queue_joined payload has type %T", joined[0].payload)
	}
	if payload.Elo != 1340 {
		t.Fatalf("queue_joined elo = %d, want handshake snapshot 1340", payload.Elo)
	}
	if payload.Priority {
		t.Fatal("fresh join must not carry priority")
	}
	assertNoFrame(t, frames)
}

func TestHandleJoinQueue_ExplicitEloOverridesSnapshot(t *testing.T) {
	h, _, notifier := newTestHandlers(t, nil)
	conn, _ := pipeConn(t, "u1", 1340)

	elo := 1777
	h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue, Elo: &elo})

	joined := notifier.eventsFor(conn.ID, protocol.TypeQueueJoined)
	if len(joined) != 1 {
		t.Fatalf("queue_joined events = %d, want 1", len(joined))
	}
	if payload := joined[0].payload.(protocol.QueueJoinedMsg); payload.Elo != 1777 {
		t.Fatalf("queue_joined elo = %d, want explicit 1777", payload.Elo)
	}
}

func TestHandleJoinQueue_NegativeEloRejected(t *testing.T) {
	h, engine, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	elo := -5
	go h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue, Elo: &elo})

	msg := errorFrame(t, frames)
	if msg.Message != "invalid elo" {
		t.Fatalf("error message = %q", msg.Message)
	}
	if size, _ := engine.QueueStats(); size != 0 {
		t.Fatalf("queue size = %d, want 0", size)
	}
}

func TestHandleJoinQueue_BannedUserGetsExpiryDetails(t *testing.T) {
	until := time.Now().Add(4 * time.Minute)
	h, engine, _ := newTestHandlers(t, &stubPenalties{
		bannedUntil: until,
		reason:      "Matchmaking abuse: declined",
	})
	conn, frames := pipeConn(t, "u1", 1340)

	go h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})

	msg := errorFrame(t, frames)
	if msg.Message != "temporarily banned from matchmaking" {
		t.Fatalf("error message = %q", msg.Message)
	}
	if !strings.Contains(msg.Details, "Matchmaking abuse: declined") {
		t.Fatalf("details %q missing penalty reason", msg.Details)
	}
	if !strings.Contains(msg.Details, until.UTC().Format(time.RFC3339)) {
		t.Fatalf("details %q missing expiry timestamp", msg.Details)
	}
	if size, _ := engine.QueueStats(); size != 0 {
		t.Fatalf("banned user entered the queue (size=%d)", size)
	}
}

func TestHandleJoinQueue_DuplicateJoinRejected(t *testing.T) {
	h, engine, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	go h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})

	msg := errorFrame(t, frames)
	if msg.Details != "already_queued" {
		t.Fatalf("error details = %q, want already_queued", msg.Details)
	}
	if size, _ := engine.QueueStats(); size != 1 {
		t.Fatalf("queue size = %d, want 1", size)
	}
}

// ---------------------------------------------------------------------------
// leave_queue
// ---------------------------------------------------------------------------

func TestHandleLeaveQueue_RemovesPlayer(t *testing.T) {
	h, engine, notifier := newTestHandlers(t, nil)
	conn, _ := pipeConn(t, "u1", 1340)

	h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	h.HandleLeaveQueue(conn, protocol.LeaveQueueMsg{Type: protocol.TypeLeaveQueue})

	if size, _ := engine.QueueStats(); size != 0 {
		t.Fatalf("queue size = %d, want 0", size)
	}
	if left := notifier.eventsFor(conn.ID, protocol.TypeQueueLeft); len(left) != 1 {
		t.Fatalf("queue_left events = %d, want 1", len(left))
	}
}

func TestHandleLeaveQueue_NotQueuedIsNoop(t *testing.T) {
	h, _, notifier := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	h.HandleLeaveQueue(conn, protocol.LeaveQueueMsg{Type: protocol.TypeLeaveQueue})

	if left := notifier.eventsFor(conn.ID, protocol.TypeQueueLeft); len(left) != 0 {
		t.Fatalf("queue_left events = %d, want 0", len(left))
	}
	assertNoFrame(t, frames)
}

// ---------------------------------------------------------------------------
// accept_match / decline_match
// ---------------------------------------------------------------------------

func TestHandleAcceptMatch_MalformedIDRejected(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	go h.HandleAcceptMatch(conn, protocol.AcceptMatchMsg{Type: protocol.TypeAcceptMatch, MatchID: "not-a-uuid"})

	if msg := errorFrame(t, frames); msg.Details != "bad_match_id" {
		t.Fatalf("error details = %q, want bad_match_id", msg.Details)
	}
}

func TestHandleAcceptMatch_UnknownMatch(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	go h.HandleAcceptMatch(conn, protocol.AcceptMatchMsg{Type: protocol.TypeAcceptMatch, MatchID: uuid.New().String()})

	if msg := errorFrame(t, frames); msg.Details != "match_not_found" {
		t.Fatalf("error details = %q, want match_not_found", msg.Details)
	}
}

func TestHandleDeclineMatch_MalformedIDRejected(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	go h.HandleDeclineMatch(conn, protocol.DeclineMatchMsg{Type: protocol.TypeDeclineMatch, MatchID: "42"})

	if msg := errorFrame(t, frames); msg.Details != "bad_match_id" {
		t.Fatalf("error details = %q, want bad_match_id", msg.Details)
	}
}

func TestHandleDeclineMatch_UnknownMatch(t *testing.T) {
	h, _, _ := newTestHandlers(t, nil)
	conn, frames := pipeConn(t, "u1", 1340)

	go h.HandleDeclineMatch(conn, protocol.DeclineMatchMsg{Type: protocol.TypeDeclineMatch, MatchID: uuid.New().String()})

	if msg := errorFrame(t, frames); msg.Details != "match_not_found" {
		t.Fatalf("error details = %q, want match_not_found", msg.Details)
	}
}

// ---------------------------------------------------------------------------
// Ready-check round trip through the handlers
// ---------------------------------------------------------------------------

func TestHandlers_MutualAcceptConfirmsMatch(t *testing.T) {
	h, engine, notifier := newTestHandlers(t, nil)
	connA, _ := pipeConn(t, "alice", 1500)
	connB, _ := pipeConn(t, "bob", 1520)

	h.HandleJoinQueue(connA, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	h.HandleJoinQueue(connB, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	engine.Tick()

	proposals := notifier.eventsFor(connA.ID, protocol.TypeMatchProposal)
	if len(proposals) != 1 {
		t.Fatalf("match_proposal events for alice = %d, want 1", len(proposals))
	}
	matchID := proposals[0].payload.(protocol.MatchProposalMsg).MatchID

	h.HandleAcceptMatch(connA, protocol.AcceptMatchMsg{Type: protocol.TypeAcceptMatch, MatchID: matchID})
	h.HandleAcceptMatch(connB, protocol.AcceptMatchMsg{Type: protocol.TypeAcceptMatch, MatchID: matchID})

	for _, conn := range []*ws.Connection{connA, connB} {
		confirmed := notifier.eventsFor(conn.ID, protocol.TypeMatchConfirmed)
		if len(confirmed) != 1 {
			t.Fatalf("match_confirmed events for %s = %d, want 1", conn.UserID, len(confirmed))
		}
	}
	if size, pending := engine.QueueStats(); size != 0 || pending != 0 {
		t.Fatalf("queue stats = (%d, %d), want (0, 0)", size, pending)
	}
}

// ---------------------------------------------------------------------------
// Disconnects
// ---------------------------------------------------------------------------

func TestHandleDisconnect_RemovesQueuedPlayer(t *testing.T) {
	h, engine, _ := newTestHandlers(t, nil)
	conn, _ := pipeConn(t, "u1", 1340)

	h.HandleJoinQueue(conn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	h.HandleDisconnect(conn)

	if size, _ := engine.QueueStats(); size != 0 {
		t.Fatalf("queue size = %d, want 0", size)
	}
}

func TestHandleDisconnect_StaleSocketLeavesFreshEntryAlone(t *testing.T) {
	h, engine, _ := newTestHandlers(t, nil)
	oldConn, _ := pipeConn(t, "u1", 1340)
	newConn, _ := pipeConn(t, "u1", 1340)

	// The player re-queued on a fresh socket before the old socket's
	// disconnect callback fired.
	h.HandleJoinQueue(newConn, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	h.HandleDisconnect(oldConn)

	if size, _ := engine.QueueStats(); size != 1 {
		t.Fatalf("queue size = %d, want 1 (stale disconnect must not evict)", size)
	}
}

func TestHandleDisconnect_PendingMatchUntouched(t *testing.T) {
	h, engine, _ := newTestHandlers(t, nil)
	connA, _ := pipeConn(t, "alice", 1500)
	connB, _ := pipeConn(t, "bob", 1520)

	h.HandleJoinQueue(connA, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	h.HandleJoinQueue(connB, protocol.JoinQueueMsg{Type: protocol.TypeJoinQueue})
	engine.Tick()

	h.HandleDisconnect(connA)

	if _, pending := engine.QueueStats(); pending != 1 {
		t.Fatalf("pending matches = %d, want 1 (accept timeout owns the outcome)", pending)
	}
}
