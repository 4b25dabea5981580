package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/wshchocolatine/ake-api/internal/kv"
	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/observability"
	"github.com/wshchocolatine/ake-api/internal/token"
)

// presenceTTL caps how long a presence entry may outlive a connection whose
// disconnect cleanup never ran.
const presenceTTL = 24 * time.Hour

// SocketHandler authenticates realtime connections with single-use opaque
// tokens and relays direct messages between connected users.
type SocketHandler struct {
	hub    *Hub
	tokens *token.Service
}

// NewSocketHandler constructs a SocketHandler.
func NewSocketHandler(hub *Hub, tokens *token.Service) *SocketHandler {
	return &SocketHandler{hub: hub, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Content string `json:"content"`
	To      string `json:"to"`
}

// Handle performs the opaque-token handshake, upgrades the connection and
// registers the user's presence. The token is consumed whether or not the
// rest of the handshake succeeds.
func (h *SocketHandler) Handle(c *gin.Context) {
	userID := c.Query("user_id")
	username := c.Query("username")
	presented := c.Query("token")
	if userID == "" || presented == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, span := otel.Tracer("ake-api/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	if _, err := h.tokens.Authenticate(ctx, presented, userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		SocketID:    newSocketID(),
		UserID:      userID,
		Username:    username,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	if err := h.tokens.Connect(ctx, userID, token.Presence{SocketID: info.SocketID, Username: username}, presenceTTL); err != nil {
		conn.Close()
		return
	}
	h.hub.Add(userID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.sockets", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   h.eventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	go h.readLoop(ctx, conn, info)
}

// eventPayload builds the envelope payload for socket lifecycle events,
// carrying the connection identity alongside the event name, duration and
// close reason.
func (h *SocketHandler) eventPayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"socket_id":   info.SocketID,
		"user_id":     info.UserID,
		"username":    info.Username,
		"ip":          info.IP,
		"event":       event,
		"duration_ms": durationMS,
		"reason":      reason,
	}
}

func (h *SocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.Remove(info.UserID, conn)
		// A replaced connection must not clear the presence entry its
		// successor wrote. Only the last connection standing removes it.
		if _, ok := h.hub.Info(info.UserID); !ok {
			_ = h.tokens.Disconnect(context.Background(), info.UserID)
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.sockets", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   h.eventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.To == "" {
			continue
		}
		h.relay(ctx, info, frame)
	}
}

// relay forwards a frame to the recipient's live connection, if the presence
// registry knows one.
func (h *SocketHandler) relay(ctx context.Context, from ConnInfo, frame inboundFrame) {
	if _, err := h.tokens.Lookup(ctx, frame.To); err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			observability.IncWSEvent("ws_error")
		}
		return
	}

	event := models.SocketEvent{
		Type:    "message",
		From:    from.UserID,
		Content: frame.Content,
		Date:    time.Now(),
	}
	if err := h.hub.SendToUser(frame.To, event); err == nil {
		observability.IncWSEvent("ws_relay")
	}
}
