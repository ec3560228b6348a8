package websocket

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

type Client struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
}

type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Hub keeps one live connection per user and pushes notification events
// to it. A user without a connection simply misses the push.
type Hub struct {
	clients    map[uuid.UUID]*conn
	clientsMu  sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*conn),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			log.Printf("Client registered: %s", client.UserID)
			h.clientsMu.Lock()
			if old, ok := h.clients[client.UserID]; ok && old.ws != client.Conn {
				old.ws.Close()
			}
			h.clients[client.UserID] = &conn{ws: client.Conn}
			h.clientsMu.Unlock()
		case client := <-h.Unregister:
			log.Printf("Client unregistered: %s", client.UserID)
			h.clientsMu.Lock()
			if c, ok := h.clients[client.UserID]; ok && c.ws == client.Conn {
				delete(h.clients, client.UserID)
			}
			h.clientsMu.Unlock()
		}
	}
}

// Publish writes event to the recipient's connection, if any. A failed
// write drops the connection and returns the error.
func (h *Hub) Publish(recipientID uuid.UUID, event any) error {
	h.clientsMu.RLock()
	c, ok := h.clients[recipientID]
	h.clientsMu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.Lock()
	err := c.ws.WriteJSON(event)
	c.mu.Unlock()
	if err != nil {
		log.Printf("Error sending event to client %s: %v", recipientID, err)
		c.ws.Close()
		h.clientsMu.Lock()
		if cur, ok := h.clients[recipientID]; ok && cur == c {
			delete(h.clients, recipientID)
		}
		h.clientsMu.Unlock()
		return err
	}
	return nil
}

func (h *Hub) Connected(userID uuid.UUID) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
