package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig tunes the liveness sweep.
type HeartbeatConfig struct {
	Interval time.Duration // time between sweeps
	Timeout  time.Duration // grace beyond the interval before a socket counts as dead
}

// DefaultHeartbeatConfig returns the production defaults: ping every 30s,
// evict after 40s of silence.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// startHeartbeat runs the liveness sweep on a ticker until the server shuts
// down. Browsers answer protocol-level pings automatically, so any healthy
// client produces at least one frame per sweep and keeps its LastPing fresh.
func (s *Server) startHeartbeat(config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.sweepConnections(config)
			}
		}
	}()
}

// sweepConnections evicts connections silent for a full interval-plus-grace
// window and pings the rest. Eviction goes through RemoveConnection so the
// matchmaking layer sees the disconnect.
func (s *Server) sweepConnections(config HeartbeatConfig) {
	deadline := config.Interval + config.Timeout
	now := time.Now()
	evicted := 0

	for _, c := range s.conns.All() {
		idle := now.Sub(c.LastPing)
		if idle > deadline {
			log.Printf("ws: heartbeat timeout conn=%s user=%s idle=%s",
				c.ID, c.UserID, idle.Round(time.Second))
			s.RemoveConnection(c)
			evicted++
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s user=%s: %v", c.ID, c.UserID, err)
			s.RemoveConnection(c)
			evicted++
		}
	}

	if evicted > 0 {
		log.Printf("ws: heartbeat sweep evicted %d connection(s), %d remain", evicted, s.conns.Count())
	}
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9). The
// write mutex keeps it from interleaving with application frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
