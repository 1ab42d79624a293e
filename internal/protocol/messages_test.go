package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join_queue message
// ---------------------------------------------------------------------------

func TestParseClientMessage_JoinQueue(t *testing.T) {
	input := []byte(`{"type":"join_queue","elo":1420}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinQueue {
		t.Fatalf("expected type %q, got %q", TypeJoinQueue, msgType)
	}

	jq, ok := msg.(JoinQueueMsg)
	if !ok {
		t.Fatalf("expected JoinQueueMsg, got %T", msg)
	}
	if jq.Elo == nil {
		t.Fatal("expected elo to be set")
	}
	if *jq.Elo != 1420 {
		t.Errorf("expected elo 1420, got %d", *jq.Elo)
	}
}

// join_queue without an elo field must leave Elo nil so the gateway can fall
// back to the rating snapshotted at connection time. An explicit zero must be
// distinguishable from an omitted field.
func TestParseClientMessage_JoinQueueOptionalElo(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"join_queue"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jq := msg.(JoinQueueMsg)
	if jq.Elo != nil {
		t.Errorf("expected nil elo for omitted field, got %d", *jq.Elo)
	}

	_, msg, err = ParseClientMessage([]byte(`{"type":"join_queue","elo":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jq = msg.(JoinQueueMsg)
	if jq.Elo == nil {
		t.Fatal("expected non-nil elo for explicit zero")
	}
	if *jq.Elo != 0 {
		t.Errorf("expected elo 0, got %d", *jq.Elo)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid accept_match message
// ---------------------------------------------------------------------------

func TestParseClientMessage_AcceptMatch(t *testing.T) {
	input := []byte(`{"type":"accept_match","matchId":"8a6e0804-2bd0-4672-b79d-d97027f9071a"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeAcceptMatch {
		t.Fatalf("expected type %q, got %q", TypeAcceptMatch, msgType)
	}

	am, ok := msg.(AcceptMatchMsg)
	if !ok {
		t.Fatalf("expected AcceptMatchMsg, got %T", msg)
	}
	if am.MatchID != "8a6e0804-2bd0-4672-b79d-d97027f9071a" {
		t.Errorf("unexpected matchId: %q", am.MatchID)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a match_proposal server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_MatchProposal(t *testing.T) {
	payload := MatchProposalMsg{
		MatchID:     "uuid-456",
		ExpiresAt:   1712000015000,
		OpponentElo: 1180,
	}

	data, err := NewServerMessage(TypeMatchProposal, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeMatchProposal {
		t.Errorf("expected type %q, got %v", TypeMatchProposal, result["type"])
	}
	if result["matchId"] != "uuid-456" {
		t.Errorf("expected matchId %q, got %v", "uuid-456", result["matchId"])
	}

	expires, ok := result["expiresAt"].(float64)
	if !ok {
		t.Fatalf("expected expiresAt to be a number, got %T", result["expiresAt"])
	}
	if int64(expires) != 1712000015000 {
		t.Errorf("expected expiresAt 1712000015000, got %v", expires)
	}

	elo, ok := result["opponentElo"].(float64)
	if !ok {
		t.Fatalf("expected opponentElo to be a number, got %T", result["opponentElo"])
	}
	if int(elo) != 1180 {
		t.Errorf("expected opponentElo 1180, got %v", elo)
	}
}

// queue_joined carries priority only when it is true; re-queued players get
// the flag, regular joins must not see it on the wire.
func TestNewServerMessage_QueueJoinedPriorityOmitted(t *testing.T) {
	data, err := NewServerMessage(TypeQueueJoined, QueueJoinedMsg{
		UserID:    "42",
		Elo:       1200,
		Timestamp: 1712000000000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if _, present := result["priority"]; present {
		t.Errorf("expected priority to be omitted when false, got %v", result["priority"])
	}

	data, err = NewServerMessage(TypeQueueJoined, QueueJoinedMsg{
		UserID:    "42",
		Elo:       1200,
		Timestamp: 1712000000000,
		Priority:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result = map[string]interface{}{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["priority"] != true {
		t.Errorf("expected priority true, got %v", result["priority"])
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// Server-only types must be rejected when they arrive from a client.
func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	input := []byte(`{"type":"match_confirmed","gameId":"g1"}`)

	_, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for server-only message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Round-trip fidelity through NewServerMessage
// ---------------------------------------------------------------------------

func TestRoundTrip_ServerMessage(t *testing.T) {
	original := MatchConfirmedMsg{
		GameID:    "game-789",
		Player1ID: "12",
		Player2ID: "34",
	}

	// Create server message bytes.
	data, err := NewServerMessage(TypeMatchConfirmed, original)
	if err != nil {
		t.Fatalf("failed to create server message: %v", err)
	}

	// Unmarshal back into the struct.
	var decoded MatchConfirmedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.Type != TypeMatchConfirmed {
		t.Errorf("type mismatch: expected %q, got %q", TypeMatchConfirmed, decoded.Type)
	}
	if decoded.GameID != original.GameID {
		t.Errorf("gameId mismatch: expected %q, got %q", original.GameID, decoded.GameID)
	}
	if decoded.Player1ID != original.Player1ID || decoded.Player2ID != original.Player2ID {
		t.Errorf("player id mismatch: got %q / %q", decoded.Player1ID, decoded.Player2ID)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"join_queue", `{"type":"join_queue","elo":1000}`, TypeJoinQueue},
		{"leave_queue", `{"type":"leave_queue"}`, TypeLeaveQueue},
		{"accept_match", `{"type":"accept_match","matchId":"id1"}`, TypeAcceptMatch},
		{"decline_match", `{"type":"decline_match","matchId":"id1"}`, TypeDeclineMatch},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
