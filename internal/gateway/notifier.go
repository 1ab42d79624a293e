package gateway

import (
	"log"

	"github.com/arena-gg/matchmaking/internal/protocol"
	"github.com/arena-gg/matchmaking/internal/ws"
)

// WSNotifier delivers matchmaking events to players over the WebSocket
// server. It implements matchmaking.Notifier; the socket id it is handed is
// the connection id minted at upgrade time.
type WSNotifier struct {
	server *ws.Server
}

// NewWSNotifier creates a notifier bound to the given server.
func NewWSNotifier(server *ws.Server) *WSNotifier {
	return &WSNotifier{server: server}
}

// Send delivers an event to a single socket. A missing socket is logged and
// dropped; the player may have disconnected between the engine's decision and
// delivery.
func (n *WSNotifier) Send(socketID, event string, payload interface{}) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("[gateway] failed to build %s message: %v", event, err)
		return
	}
	if err := n.server.SendMessage(socketID, data); err != nil {
		log.Printf("[gateway] failed to send %s to conn=%s: %v", event, socketID, err)
	}
}

// Broadcast delivers an event to every connected client.
func (n *WSNotifier) Broadcast(event string, payload interface{}) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		log.Printf("[gateway] failed to build %s broadcast: %v", event, err)
		return
	}
	n.server.Connections().Broadcast(data)
}

// IsConnected reports whether the socket is still registered with the server.
func (n *WSNotifier) IsConnected(socketID string) bool {
	return n.server.Connections().Get(socketID) != nil
}
