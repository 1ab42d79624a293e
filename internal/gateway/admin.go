package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arena-gg/matchmaking/internal/history"
	"github.com/arena-gg/matchmaking/internal/matchmaking"
	"github.com/arena-gg/matchmaking/internal/penalty"
	"github.com/arena-gg/matchmaking/internal/ws"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200
	penaltyHistoryLimit = 20
)

// SessionLister supplies recent match history rows for the admin surface.
type SessionLister interface {
	Recent(ctx context.Context, limit int) ([]history.Session, error)
}

// PenaltyHistorian supplies a user's penalty records for the admin surface.
type PenaltyHistorian interface {
	History(ctx context.Context, userID string, limit int) ([]penalty.Record, error)
}

// AdminHandlers serve the read-only HTTP endpoints used by dashboards and ops
// tooling. They sit on the gateway mux next to /health and /metrics and carry
// no authentication; the deployment keeps them off the public listener.
type AdminHandlers struct {
	engine    *matchmaking.Service
	sessions  SessionLister
	penalties PenaltyHistorian
}

// NewAdminHandlers creates the admin endpoint handlers.
func NewAdminHandlers(engine *matchmaking.Service, sessions SessionLister, penalties PenaltyHistorian) *AdminHandlers {
	return &AdminHandlers{engine: engine, sessions: sessions, penalties: penalties}
}

// Register installs the admin routes on the server. Must be called before
// the server starts.
func (a *AdminHandlers) Register(server *ws.Server) {
	server.Handle("/matchmaking/queue", http.HandlerFunc(a.handleQueue))
	server.Handle("/matchmaking/sessions", http.HandlerFunc(a.handleSessions))
	server.Handle("/matchmaking/penalties/", http.HandlerFunc(a.handlePenalties))
}

// handleQueue reports the live queue composition.
func (a *AdminHandlers) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	size, pending := a.engine.QueueStats()
	writeJSON(w, struct {
		Size    int `json:"size"`
		Pending int `json:"pending"`
	}{size, pending})
}

type sessionResponse struct {
	ID        string     `json:"id"`
	Player1ID string     `json:"player1Id"`
	Player2ID string     `json:"player2Id"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// handleSessions returns the most recently started matches, newest first.
// An optional limit query parameter caps the page size.
func (a *AdminHandlers) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	rows, err := a.sessions.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("[gateway] admin sessions query: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]sessionResponse, 0, len(rows))
	for _, s := range rows {
		resp := sessionResponse{
			ID:        s.ID,
			Player1ID: s.Player1ID,
			Player2ID: s.Player2ID,
			Status:    s.Status,
			StartedAt: s.StartedAt,
		}
		if s.EndedAt.Valid {
			t := s.EndedAt.Time
			resp.EndedAt = &t
		}
		out = append(out, resp)
	}
	writeJSON(w, out)
}

type penaltyResponse struct {
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Active    bool      `json:"active"`
}

// handlePenalties returns a user's penalty history, newest first. The user id
// is the final path segment: /matchmaking/penalties/{userId}.
func (a *AdminHandlers) handlePenalties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/matchmaking/penalties/")
	if userID == "" || strings.Contains(userID, "/") {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	records, err := a.penalties.History(r.Context(), userID, penaltyHistoryLimit)
	if err != nil {
		log.Printf("[gateway] admin penalties query user=%s: %v", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	out := make([]penaltyResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, penaltyResponse{
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
			Active:    rec.ExpiresAt.After(now),
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] write response: %v", err)
	}
}
