package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arena-gg/matchmaking/internal/history"
	"github.com/arena-gg/matchmaking/internal/matchmaking"
	"github.com/arena-gg/matchmaking/internal/penalty"
)

type fakeSessionLister struct {
	rows     []history.Session
	err      error
	gotLimit int
}

func (f *fakeSessionLister) Recent(ctx context.Context, limit int) ([]history.Session, error) {
	f.gotLimit = limit
	return f.rows, f.err
}

type fakePenaltyHistorian struct {
	records []penalty.Record
	err     error
	gotUser string
}

func (f *fakePenaltyHistorian) History(ctx context.Context, userID string, limit int) ([]penalty.Record, error) {
	f.gotUser = userID
	return f.records, f.err
}

func newTestAdmin(t *testing.T) (*AdminHandlers, *matchmaking.Service, *fakeSessionLister, *fakePenaltyHistorian) {
	t.Helper()
	engine := matchmaking.NewService(matchmaking.DefaultConfig(),
		&stubPenalties{}, stubSessions{}, stubGames{}, newRecordingNotifier(), nil)
	t.Cleanup(engine.Stop)

	sessions := &fakeSessionLister{}
	penalties := &fakePenaltyHistorian{}
	return NewAdminHandlers(engine, sessions, penalties), engine, sessions, penalties
}

func TestAdminQueue_ReportsLiveStats(t *testing.T) {
	a, engine, _, _ := newTestAdmin(t)
	ctx := context.Background()
	if err := engine.AddPlayer(ctx, "alice", "sA", 1500, false); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := engine.AddPlayer(ctx, "bob", "sB", 2400, false); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	rec := httptest.NewRecorder()
	a.handleQueue(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/queue", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Size    int `json:"size"`
		Pending int `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Size != 2 || body.Pending != 0 {
		t.Fatalf("body = %+v, want size=2 pending=0", body)
	}
}

func TestAdminQueue_RejectsNonGET(t *testing.T) {
	a, _, _, _ := newTestAdmin(t)

	rec := httptest.NewRecorder()
	a.handleQueue(rec, httptest.NewRequest(http.MethodPost, "/matchmaking/queue", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestAdminSessions_ReturnsRecentRows(t *testing.T) {
	a, _, sessions, _ := newTestAdmin(t)
	started := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	ended := started.Add(8 * time.Minute)
	sessions.rows = []history.Session{
		{ID: "m2", Player1ID: "carol", Player2ID: "dave", Status: history.StatusStarted, StartedAt: started.Add(time.Minute)},
		{ID: "m1", Player1ID: "alice", Player2ID: "bob", Status: "ENDED", StartedAt: started,
			EndedAt: sql.NullTime{Time: ended, Valid: true}},
	}

	rec := httptest.NewRecorder()
	a.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sessions.gotLimit != defaultSessionLimit {
		t.Fatalf("store limit = %d, want default %d", sessions.gotLimit, defaultSessionLimit)
	}

	var body []sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("rows = %d, want 2", len(body))
	}
	if body[0].ID != "m2" || body[0].EndedAt != nil {
		t.Fatalf("row 0 = %+v, want m2 with no end time", body[0])
	}
	if body[1].EndedAt == nil || !body[1].EndedAt.Equal(ended) {
		t.Fatalf("row 1 endedAt = %v, want %v", body[1].EndedAt, ended)
	}
}

func TestAdminSessions_ClampsLimit(t *testing.T) {
	a, _, sessions, _ := newTestAdmin(t)

	rec := httptest.NewRecorder()
	a.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/sessions?limit=9999", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sessions.gotLimit != maxSessionLimit {
		t.Fatalf("store limit = %d, want clamp %d", sessions.gotLimit, maxSessionLimit)
	}
}

func TestAdminSessions_RejectsBadLimit(t *testing.T) {
	a, _, _, _ := newTestAdmin(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		a.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/sessions?limit="+limit, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestAdminSessions_StoreErrorIs500(t *testing.T) {
	a, _, sessions, _ := newTestAdmin(t)
	sessions.err = errors.New("connection refused")

	rec := httptest.NewRecorder()
	a.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/sessions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestAdminPenalties_ReturnsHistoryWithActiveFlag(t *testing.T) {
	a, _, _, penalties := newTestAdmin(t)
	now := time.Now()
	penalties.records = []penalty.Record{
		{UserID: "alice", Reason: "Matchmaking abuse: timeout", CreatedAt: now, ExpiresAt: now.Add(4 * time.Minute)},
		{UserID: "alice", Reason: "Matchmaking abuse: declined", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-55 * time.Minute)},
	}

	rec := httptest.NewRecorder()
	a.handlePenalties(rec, httptest.NewRequest(http.MethodGet, "/matchmaking/penalties/alice", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if penalties.gotUser != "alice" {
		t.Fatalf("store user = %q, want alice", penalties.gotUser)
	}

	var body []penaltyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("records = %d, want 2", len(body))
	}
	if !body[0].Active {
		t.Fatal("live penalty not flagged active")
	}
	if body[1].Active {
		t.Fatal("expired penalty flagged active")
	}
}

func TestAdminPenalties_RequiresUserID(t *testing.T) {
	a, _, _, _ := newTestAdmin(t)

	for _, path := range []string{"/matchmaking/penalties/", "/matchmaking/penalties/alice/extra"} {
		rec := httptest.NewRecorder()
		a.handlePenalties(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("path=%s: status = %d, want 400", path, rec.Code)
		}
	}
}
