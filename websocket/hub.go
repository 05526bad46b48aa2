package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Event struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Hub fans admin feed events out to every connected admin console.
type Hub struct {
	clients    map[Conn]bool
	clientsMu  sync.RWMutex
	register   chan Conn
	unregister chan Conn
	broadcast  chan Event

	// closed once Run has returned
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Conn]bool),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		broadcast:  make(chan Event, 64),
		done:       make(chan struct{}),
	}
}

// Register adds conn to the feed. After Run has stopped the connection is closed instead.
func (h *Hub) Register(conn Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

func (h *Hub) Unregister(conn Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues an event without blocking; it is dropped when the queue is full.
func (h *Hub) Publish(eventType string, data interface{}) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- Event{Type: eventType, At: time.Now(), Data: data}:
	default:
		log.Printf("⚠️ Admin feed queue full, dropping %s event", eventType)
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.clientsMu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.clientsMu.Unlock()
			return
		case conn := <-h.register:
			h.clientsMu.Lock()
			h.clients[conn] = true
			h.clientsMu.Unlock()
			log.Printf("Admin feed client registered (%d connected)", h.ClientCount())
		case conn := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.clientsMu.Unlock()
		case event := <-h.broadcast:
			h.clientsMu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Error sending %s event to admin feed client: %v", event.Type, err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.clientsMu.Unlock()
		}
	}
}
