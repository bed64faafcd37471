// Package ws serves the coordinator's event feed to websocket viewers.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	backlogSize = 32
	sendBuffer  = 16
	writeWait   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans events out to connected viewers. New viewers first receive the
// most recent events. A viewer that cannot keep up misses events rather than
// blocking the publisher.
type Hub struct {
	sem chan struct{}

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
}

// NewHub creates a hub admitting at most maxClients concurrent viewers.
func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 8
	}
	return &Hub{
		sem:     make(chan struct{}, maxClients),
		clients: make(map[*client]struct{}),
	}
}

// Publish marshals v as JSON and queues it for every viewer.
func (h *Hub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog = append(h.backlog, data)
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("event dropped for slow viewer", "remote", c.conn.RemoteAddr().String())
		}
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events until the viewer
// disconnects. Returns 503 when at capacity.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := h.register(conn)
	defer h.unregister(c)

	go c.readUntilClosed()
	c.writeLoop()
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer+backlogSize),
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	for _, data := range h.backlog {
		c.send <- data
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("viewer connected", "remote", conn.RemoteAddr().String())
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	slog.Info("viewer disconnected", "remote", c.conn.RemoteAddr().String())
}

// readUntilClosed discards inbound frames until the peer goes away.
func (c *client) readUntilClosed() {
	defer close(c.closed)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("write event", "error", err)
				return
			}
		}
	}
}
