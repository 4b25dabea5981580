package handlers

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wshchocolatine/ake-api/internal/crypto"
	"github.com/wshchocolatine/ake-api/internal/middleware"
	"github.com/wshchocolatine/ake-api/internal/models"
	"github.com/wshchocolatine/ake-api/internal/observability"
	"github.com/wshchocolatine/ake-api/internal/repositories"
)

// conversationPageSize is the fixed page length for listing and searching.
const conversationPageSize = 12

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	users         repositories.UserRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, users repositories.UserRepository) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, users: users}
}

type participantIdentity struct {
	Username string `json:"username" binding:"required"`
	Tag      *int   `json:"tag" binding:"required"`
}

// New creates a conversation with its participants, wrapped keys, first
// message and initial read statuses, atomically.
func (h *ConversationHandler) New(c *gin.Context) {
	var req struct {
		Participants []participantIdentity `json:"participants" binding:"required,min=1,dive"`
		Content      string                `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creatorID := c.GetString(middleware.UserIDKey)
	creator, err := h.users.GetByID(c.Request.Context(), creatorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		return
	}

	// Resolve every identity; any miss rejects the whole request.
	seen := map[string]bool{creatorID: true}
	others := make([]models.User, 0, len(req.Participants))
	for _, identity := range req.Participants {
		user, err := h.users.GetByIdentity(c.Request.Context(), identity.Username, *identity.Tag)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "this user doesn't exist"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve participants"})
			return
		}
		if seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		others = append(others, user)
	}
	if len(others) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	if len(others) == 1 {
		exists, err := h.conversations.DirectConversationExists(c.Request.Context(), creatorID, others[0].ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not check existing conversations"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "conversation already exists"})
			return
		}
	}

	key, iv, err := crypto.GenerateConversationKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate conversation key"})
		return
	}
	ciphertext, err := crypto.EncryptMessage(key, iv, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not encrypt message"})
		return
	}

	conversationID := uuid.NewString()
	messageID := uuid.NewString()
	ivHex := hex.EncodeToString(iv)

	members := append([]models.User{creator}, others...)
	nc := repositories.NewConversation{
		Conversation: models.Conversation{ID: conversationID, CreatorID: creatorID, FirstMessageID: messageID},
		FirstMessage: models.Message{ID: messageID, ConversationID: conversationID, AuthorID: creatorID, Content: ciphertext},
	}
	for _, member := range members {
		wrapped, err := crypto.WrapKey(member.PublicKey, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not wrap conversation key"})
			return
		}
		nc.Participants = append(nc.Participants, member.ID)
		nc.Statuses = append(nc.Statuses, models.MessageStatus{
			MessageID: messageID,
			UserID:    member.ID,
			Read:      member.ID == creatorID,
		})
		nc.Keys = append(nc.Keys, models.Key{
			ConversationID: conversationID,
			OwnerID:        member.ID,
			KeyEncrypted:   wrapped,
			IV:             ivHex,
		})
	}

	if err := h.conversations.CreateConversation(c.Request.Context(), nc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	observability.IncConversationCreated(len(members))
	_ = observability.PublishEvent(c.Request.Context(), "conversations.created", observability.EventEnvelope{
		EventType: "conversation_events",
		EventName: "conversation_created",
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"creator_id":      creatorID,
			"participants":    len(members),
		},
	}, observability.BuildHeaders(requestIDFromContext(c), ""))

	c.JSON(http.StatusCreated, gin.H{"conversation_id": conversationID, "message_id": messageID})
}

// List returns a page of the user's conversations ordered by most recent
// activity, decrypting the latest message of each with the session secret.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	sessionKey := c.GetString(middleware.SessionKeyKey)
	offset := offsetFromQuery(c)

	summaries, err := h.conversations.ListConversations(c.Request.Context(), userID, offset, conversationPageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decryptSummaries(sessionKey, summaries), "status": "ok"})
}

// Search filters the user's conversations by a username prefix of the other
// participants, with the same decrypt-and-attach pipeline as List.
func (h *ConversationHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	userID := c.GetString(middleware.UserIDKey)
	sessionKey := c.GetString(middleware.SessionKeyKey)
	offset := offsetFromQuery(c)

	summaries, err := h.conversations.SearchConversations(c.Request.Context(), userID, query, offset, conversationPageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not search conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decryptSummaries(sessionKey, summaries), "status": "ok"})
}

// decryptSummaries turns raw summaries into API entries. A summary whose key
// row is missing or undecryptable becomes an error entry; the page survives.
func decryptSummaries(sessionKey string, summaries []models.ConversationSummary) []models.ConversationEntry {
	entries := make([]models.ConversationEntry, 0, len(summaries))
	for _, summary := range summaries {
		entry := models.ConversationEntry{
			ConversationID: summary.Conversation.ID,
			Participants:   summary.Others,
		}

		if summary.Key.KeyEncrypted == "" {
			entry.Error = "conversation key unavailable"
			entries = append(entries, entry)
			continue
		}

		plaintext, err := decryptWithWrappedKey(sessionKey, summary.Key, summary.LatestMessage.Content)
		if err != nil {
			entry.Error = "conversation key undecryptable"
			entries = append(entries, entry)
			continue
		}

		entry.LastMessage = plaintext
		entry.LastAuthorID = summary.LatestMessage.AuthorID
		entry.LastMessageAt = summary.LatestMessage.CreatedAt
		entry.LastRead = summary.LatestRead
		entries = append(entries, entry)
	}
	return entries
}

func decryptWithWrappedKey(sessionKey string, key models.Key, ciphertext string) (string, error) {
	raw, err := crypto.UnwrapKey(sessionKey, key.KeyEncrypted)
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(key.IV)
	if err != nil {
		return "", err
	}
	return crypto.DecryptMessage(raw, iv, ciphertext)
}

func offsetFromQuery(c *gin.Context) int {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
