package handlers

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wshchocolatine/ake-api/internal/crypto"
	"github.com/wshchocolatine/ake-api/internal/middleware"
	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/observability"
	"github.com/wshchocolatine/ake-api/internal/repositories"
)

// messagePageSize is the fixed page length for message history.
const messagePageSize = 50

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, conversations repositories.ConversationRepository) *MessageHandler {
	return &MessageHandler{messages: messages, conversations: conversations}
}

// Send encrypts a message with the conversation key recovered through the
// sender's session secret and inserts it with one status row per
// participant, atomically.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		ConversationID string `json:"conversation_id" binding:"required"`
		Content        string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	sessionKey := c.GetString(middleware.SessionKeyKey)

	key, err := h.conversations.GetKey(c.Request.Context(), req.ConversationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load conversation key"})
		return
	}

	rawKey, err := crypto.UnwrapKey(sessionKey, key.KeyEncrypted)
	if err != nil {
		// Deliberately undifferentiated: no decryption oracle.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	iv, err := hex.DecodeString(key.IV)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ciphertext, err := crypto.EncryptMessage(rawKey, iv, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	participantIDs, err := h.conversations.ListParticipantIDs(c.Request.Context(), req.ConversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load participants"})
		return
	}

	messageID := uuid.NewString()
	nm := repositories.NewMessage{
		Message: models.Message{
			ID:             messageID,
			ConversationID: req.ConversationID,
			AuthorID:       userID,
			Content:        ciphertext,
		},
	}
	for _, participantID := range participantIDs {
		nm.Statuses = append(nm.Statuses, models.MessageStatus{
			MessageID: messageID,
			UserID:    participantID,
			Read:      participantID == userID,
		})
	}

	if err := h.messages.CreateMessage(c.Request.Context(), nm); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	observability.IncMessageSent()
	_ = observability.PublishEvent(c.Request.Context(), "messages.sent", observability.EventEnvelope{
		EventType: "message_events",
		EventName: "message_sent",
		Payload: map[string]interface{}{
			"conversation_id": req.ConversationID,
			"message_id":      messageID,
			"author_id":       userID,
		},
	}, observability.BuildHeaders(requestIDFromContext(c), ""))

	c.JSON(http.StatusCreated, gin.H{"message_id": messageID})
}

// List returns a decrypted page of a conversation's history, most recent
// first, with the requester's read flag on each message.
func (h *MessageHandler) List(c *gin.Context) {
	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing conversation id"})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	sessionKey := c.GetString(middleware.SessionKeyKey)
	offset := offsetFromQuery(c)

	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	key, err := h.conversations.GetKey(c.Request.Context(), conversationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load conversation key"})
		return
	}
	rawKey, err := crypto.UnwrapKey(sessionKey, key.KeyEncrypted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	iv, err := hex.DecodeString(key.IV)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views, err := h.messages.ListMessages(c.Request.Context(), conversationID, userID, offset, messagePageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load messages"})
		return
	}
	for i := range views {
		plaintext, err := crypto.DecryptMessage(rawKey, iv, views[i].Content)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		views[i].Content = plaintext
	}

	c.JSON(http.StatusOK, gin.H{"data": views, "status": "ok"})
}

// Read marks as read, for the caller, every message in the target's
// conversation up to the target's creation time. Idempotent.
func (h *MessageHandler) Read(c *gin.Context) {
	messageID := c.Query("message_id")
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message id"})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	if err := h.messages.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark as read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
