// Package gameclient is the HTTP client for the external Game service, which
// provisions a game instance once both players of a match have accepted.
//
// The client never surfaces transport errors to callers: any network failure,
// timeout, non-2xx status, or schema-invalid response body is folded into a
// synthesized failure result whose message carries a "fallback" marker. The
// matchmaking core reacts to failures uniformly by re-queueing both players.
package gameclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/arena-gg/matchmaking/internal/metrics"
)

// Business error codes returned by the Game service.
const (
	ErrCodeGameAlreadyExists   = "GAME_ALREADY_EXISTS"
	ErrCodePlayerAlreadyInGame = "PLAYER_ALREADY_IN_GAME"
	ErrCodeInvalidPlayers      = "INVALID_PLAYERS"
)

const (
	defaultTimeout = 3 * time.Second
	healthTimeout  = 2 * time.Second

	// maxResponseBytes caps how much of a response body is read. The Game
	// service replies are tiny; anything larger is not a valid reply.
	maxResponseBytes = 1 << 20
)

// Result is the typed outcome of a create-game call.
type Result struct {
	Success bool   `json:"success"`
	GameID  string `json:"gameId,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client talks to the Game service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the Game service at baseURL. A non-positive
// timeout falls back to the default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type createGameRequest struct {
	GameID    string `json:"gameId"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
}

// CreateGame asks the Game service to provision a game instance. The gameID
// doubles as the match id, making the call idempotent on the service side.
// The returned Result is always usable; see the package comment for the
// fallback behavior.
func (c *Client) CreateGame(ctx context.Context, gameID, player1ID, player2ID string) Result {
	if gameID == "" || player1ID == "" || player2ID == "" {
		return fallback("create-game input has empty fields")
	}

	body, err := json.Marshal(createGameRequest{
		GameID:    gameID,
		Player1ID: player1ID,
		Player2ID: player2ID,
	})
	if err != nil {
		return fallback(fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/games", bytes.NewReader(body))
	if err != nil {
		return fallback(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.GameCreationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[game] create game %s: %v", gameID, err)
		return fallback("game service unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Printf("[game] create game %s: read body: %v", gameID, err)
		return fallback("failed to read game service response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[game] create game %s: status %d", gameID, resp.StatusCode)
		return fallback(fmt.Sprintf("game service returned status %d", resp.StatusCode))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Printf("[game] create game %s: decode body: %v", gameID, err)
		return fallback("malformed game service response")
	}
	if err := validateResult(res); err != nil {
		log.Printf("[game] create game %s: %v", gameID, err)
		return fallback(err.Error())
	}
	return res
}

// validateResult checks schema conformance of a decoded Game service reply.
func validateResult(res Result) error {
	if res.Success {
		if res.GameID == "" {
			return fmt.Errorf("success response missing gameId")
		}
		return nil
	}
	switch res.Error {
	case ErrCodeGameAlreadyExists, ErrCodePlayerAlreadyInGame, ErrCodeInvalidPlayers:
		return nil
	default:
		return fmt.Errorf("unknown error code %q", res.Error)
	}
}

// Health probes GET /health with a short timeout. It reports whether the Game
// service answered 200.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode == http.StatusOK
}

// fallback synthesizes the failure result used whenever the real call could
// not complete within contract. The "fallback" marker in the message
// distinguishes synthesized results from genuine Game service replies.
func fallback(reason string) Result {
	return Result{
		Success: false,
		Error:   ErrCodeGameAlreadyExists,
		Message: fmt.Sprintf("fallback: %s", reason),
	}
}
