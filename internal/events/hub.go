package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is one host event as pushed to socket clients.
type Message struct {
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

type Settings struct {
	WriteTimeout time.Duration
	PingTimeout  time.Duration
	ReadTimeout  time.Duration
	SendBuffer   int
}

func DefaultSettings() Settings {
	return Settings{
		WriteTimeout: 5 * time.Second,
		PingTimeout:  30 * time.Second,
		ReadTimeout:  90 * time.Second,
		SendBuffer:   64,
	}
}

// Hub fans host events out to every connected websocket client. It
// satisfies the service event emitter.
type Hub struct {
	settings Settings
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	ws     *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		c.ws.Close()
	})
}

func NewHub(settings Settings) *Hub {
	def := DefaultSettings()
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = def.WriteTimeout
	}
	if settings.PingTimeout <= 0 {
		settings.PingTimeout = def.PingTimeout
	}
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = def.SendBuffer
	}
	return &Hub{
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Emit broadcasts event to all clients. Clients whose send buffer is full
// are disconnected rather than allowed to stall the caller.
func (h *Hub) Emit(_ context.Context, event string, data any) {
	msg, err := json.Marshal(Message{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		log.Printf("events: encode %s: %v", event, err)
		return
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Printf("events: dropping slow client %s", c.ws.RemoteAddr())
		c.close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{ws: ws, send: make(chan []byte, h.settings.SendBuffer), cancel: cancel}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.close()
	}()

	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.settings.WriteTimeout))
		c.close()
	}
}

// ── helpers ──────────────────────────────────────────────

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	defer c.close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-time.After(h.settings.PingTimeout):
			c.ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames; it exists to notice disconnects and
// keep pong handling alive.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	c.ws.SetReadLimit(4096)
	extend := func() {
		if h.settings.ReadTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
		extend()
	}
}
