package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/observability"
)

// ErrNotConnected is returned when the recipient has no live connection.
var ErrNotConnected = errors.New("user not connected")

// Hub maintains the live socket connection of each user. One connection per
// user: a newer connection replaces the previous one.
type Hub struct {
	conns map[string]*websocket.Conn
	infos map[string]ConnInfo
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*websocket.Conn),
		infos: make(map[string]ConnInfo),
	}
}

// Add registers a user's connection.
func (h *Hub) Add(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[userID]; ok && old != conn {
		old.Close()
	}
	h.conns[userID] = conn
	h.infos[userID] = info
}

// Remove drops a user's connection if it is still the registered one.
func (h *Hub) Remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[userID]; ok && current == conn {
		delete(h.conns, userID)
		delete(h.infos, userID)
	}
}

// Info returns the connection info of a connected user.
func (h *Hub) Info(userID string) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.infos[userID]
	return info, ok
}

// SendToUser delivers an event to a user's live connection, if any.
func (h *Hub) SendToUser(userID string, event models.SocketEvent) error {
	h.mu.RLock()
	conn := h.conns[userID]
	h.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("websocket write error: %v", err)
		conn.Close()
		h.Remove(userID, conn)
		observability.IncWSEvent("ws_error")
		return err
	}
	return nil
}
