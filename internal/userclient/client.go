// Package userclient fetches a player's skill rating from the Users service.
// The rating is snapshotted once per connection at handshake time; the queue
// never re-reads it.
package userclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 3 * time.Second
	maxResponseBytes = 1 << 16
)

// DefaultElo is the rating used when the Users service cannot supply one.
const DefaultElo = 1000

// Client talks to the Users service over HTTP.
type Client struct {
	baseURL    string
	http       *http.Client
	defaultElo int
}

// New creates a Client for the Users service at baseURL. Non-positive timeout
// and defaultElo values fall back to the package defaults.
func New(baseURL string, timeout time.Duration, defaultElo int) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if defaultElo <= 0 {
		defaultElo = DefaultElo
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		defaultElo: defaultElo,
	}
}

// Elo returns the player's current rating. Any transport failure, non-200
// status, or malformed body yields the configured default rating so a Users
// service outage never blocks connections.
func (c *Client) Elo(ctx context.Context, userID string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/users/%s/elo", c.baseURL, userID), nil)
	if err != nil {
		return c.defaultElo
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[users] elo lookup for user %s: %v (using default %d)", userID, err, c.defaultElo)
		return c.defaultElo
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("[users] elo lookup for user %s: status %d (using default %d)", userID, resp.StatusCode, c.defaultElo)
		return c.defaultElo
	}

	var body struct {
		Elo *int `json:"elo"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Elo == nil || *body.Elo < 0 {
		log.Printf("[users] elo lookup for user %s: malformed body (using default %d)", userID, c.defaultElo)
		return c.defaultElo
	}
	return *body.Elo
}
