package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"pumpdump/internal/ws"
)

// wsConn is the connection surface the hub needs; *websocket.Conn satisfies
// it.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one player's websocket connection to a game.
type Client struct {
	conn   wsConn
	player string
	mu     sync.Mutex
}

// Hub tracks the connections of a single (owner, token) game and fans
// events out to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s (Total: %d)", client.player, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				log.Printf("[WS] Client disconnected: %s (Total: %d)", client.player, len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to every connected client. The caller's goroutine
// drives the writes, so events from a single source reach each client in the
// order they were broadcast.
func (h *Hub) Broadcast(env ws.Envelope) {
	for _, client := range h.Clients() {
		client.Send(env)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		out = append(out, client)
	}
	return out
}

func (h *Hub) RegisterClient(conn wsConn, player string) *Client {
	client := &Client{
		conn:   conn,
		player: player,
	}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) Player() string {
	return c.player
}

func (c *Client) Send(env ws.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Write error for player %s: %v", c.player, err)
	}
}
