package eventbus

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/faceguard/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// wsClient is one connected WebSocket viewer, optionally filtered to a
// single camera.
type wsClient struct {
	conn     *websocket.Conn
	send     chan []byte
	cameraID string // optional filter, empty means all cameras
}

// WSHub renders a Bus subscription as JSON over WebSocket connections,
// adapted from the teacher's ws.Hub: the same register/unregister/
// broadcast channel loop and drop-on-full-disconnect semantics, now
// fed by a Bus subscription and rendering DomainEvent instead of
// dto.WSEvent.
type WSHub struct {
	bus *Bus

	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

// NewWSHub builds a hub that relays every event published on bus to its
// connected WebSocket clients.
func NewWSHub(bus *Bus) *WSHub {
	return &WSHub{
		bus:        bus,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run subscribes to the bus and drives the hub's event loop until stop
// is closed. Call this in a goroutine.
func (h *WSHub) Run(stop <-chan struct{}) {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	for {
		select {
		case <-stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			h.broadcast(evt)

		case n := <-sub.Lagged():
			slog.Warn("ws hub lagging behind event bus", "missed", n)
		}
	}
}

func (h *WSHub) broadcast(evt DomainEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.cameraID != "" && evt.CameraID != nil && evt.CameraID.String() != client.cameraID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow client: drop it rather than block the broadcast loop.
			go func(c *wsClient) { h.unregister <- c }(client)
		}
	}
}

// HandleWS upgrades the request to a WebSocket connection and streams
// events to it, optionally filtered to a single camera via the
// ?camera_id= query parameter.
func (h *WSHub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan []byte, 64),
		cameraID: c.Query("camera_id"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) readPump(h *WSHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Incoming client messages are not processed; this loop only
		// detects disconnection.
	}
}
