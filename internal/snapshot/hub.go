package snapshot

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"polybot/internal/events"
	"polybot/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is a single connected dashboard socket.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans published pipeline events out to every connected dashboard
// client, grounded on the teacher's internal/api/websocket.go WSHub.
type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     *logging.Logger
}

func newHub() *hub {
	return &hub{
		clients: make(map[*wsClient]bool),
		log:     logging.WithComponent("snapshot"),
	}
}

// attach subscribes the hub to every pipeline event so it can broadcast
// them to connected clients as they happen.
func (h *hub) attach(bus *events.EventBus) {
	bus.SubscribeAll(func(ev events.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		h.broadcast(payload)
	})
}

func (h *hub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client; drop rather than block the broadcaster.
		}
	}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// handleWS upgrades the connection and pumps events until the client
// disconnects.
func (h *hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	h.register(client)

	go h.writePump(client)
	h.readPump(client)
}

func (h *hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
