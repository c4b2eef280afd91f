package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/presence"
)

// Hub owns the live clients and keeps the presence registry in step with
// them. There is one Hub per process.
type Hub struct {
	registry *presence.Registry
	opts     Options

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func NewHub(registry *presence.Registry, opts Options) *Hub {
	return &Hub{
		registry: registry,
		opts:     opts.withDefaults(),
		clients:  make(map[*Client]struct{}),
	}
}

// Serve runs an upgraded connection for userID until it closes. The client
// is registered before its pumps start, so the first frame it receives is
// the online list that includes the user.
func (h *Hub) Serve(userID string, conn *websocket.Conn) {
	c := newClient(userID, conn, h.opts)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	go c.writePump()
	h.registry.Connect(userID, c)
	logging.Info().Str("user_id", userID).Str("conn_id", c.ID()).Msg("ws connected")

	c.readPump()

	h.registry.Disconnect(userID, c)
	c.Close()
	<-c.Done()

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	logging.Info().Str("user_id", userID).Str("conn_id", c.ID()).Msg("ws disconnected")
}

// Len is the number of live clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every client and waits for their Serve calls to return.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		// closing the socket unblocks readPump
		_ = c.conn.Close()
		c.Close()
	}
	h.wg.Wait()
}
