package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wshchocolatine/ake-api/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrKeyNotFound          = errors.New("conversation key not found")
)

// NewConversation bundles every row a conversation is created with. The
// insert is all-or-nothing: a conversation is never partially visible.
type NewConversation struct {
	Conversation models.Conversation
	Participants []string
	FirstMessage models.Message
	Statuses     []models.MessageStatus
	Keys         []models.Key
}

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, nc NewConversation) error
	DirectConversationExists(ctx context.Context, userA, userB string) (bool, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	GetKey(ctx context.Context, conversationID, ownerID string) (models.Key, error)
	ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	ListConversations(ctx context.Context, userID string, offset, limit int) ([]models.ConversationSummary, error)
	SearchConversations(ctx context.Context, userID, usernamePrefix string, offset, limit int) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation inserts the conversation, its participants, its first
// message, one status row per participant and one wrapped key per
// participant inside a single transaction.
func (r *ConversationRepo) CreateConversation(ctx context.Context, nc NewConversation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, creator_id, first_message_id) VALUES ($1, $2, $3)`,
		nc.Conversation.ID, nc.Conversation.CreatorID, nc.Conversation.FirstMessageID); err != nil {
		return err
	}
	for _, userID := range nc.Participants {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO participants (user_id, conversation_id) VALUES ($1, $2)`,
			userID, nc.Conversation.ID); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, content) VALUES ($1, $2, $3, $4)`,
		nc.FirstMessage.ID, nc.FirstMessage.ConversationID, nc.FirstMessage.AuthorID, nc.FirstMessage.Content); err != nil {
		return err
	}
	for _, status := range nc.Statuses {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO message_statuses (message_id, user_id, read) VALUES ($1, $2, $3)`,
			status.MessageID, status.UserID, status.Read); err != nil {
			return err
		}
	}
	for _, key := range nc.Keys {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO keys (conversation_id, owner_id, key_encrypted, iv) VALUES ($1, $2, $3, $4)`,
			key.ConversationID, key.OwnerID, key.KeyEncrypted, key.IV); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DirectConversationExists reports whether a conversation with exactly two
// participants already links the given pair. Check-then-insert: two
// concurrent creations can both pass this before either commits.
func (r *ConversationRepo) DirectConversationExists(ctx context.Context, userA, userB string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(
        SELECT 1 FROM conversations c
        WHERE (SELECT COUNT(*) FROM participants p WHERE p.conversation_id = c.id) = 2
          AND EXISTS(SELECT 1 FROM participants p WHERE p.conversation_id = c.id AND p.user_id = $1)
          AND EXISTS(SELECT 1 FROM participants p WHERE p.conversation_id = c.id AND p.user_id = $2))`,
		userA, userB)
	return exists, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// GetKey fetches a participant's wrapped key row.
func (r *ConversationRepo) GetKey(ctx context.Context, conversationID, ownerID string) (models.Key, error) {
	var key models.Key
	err := r.db.GetContext(ctx, &key,
		`SELECT conversation_id, owner_id, key_encrypted, iv FROM keys WHERE conversation_id=$1 AND owner_id=$2`,
		conversationID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Key{}, ErrKeyNotFound
	}
	return key, err
}

// ListParticipantIDs returns the ids of every member of a conversation.
func (r *ConversationRepo) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM participants WHERE conversation_id=$1`, conversationID)
	return ids, err
}

// ListConversations returns the user's conversations ordered by most recent
// activity, each with the requester's key row, the latest message and the
// other participants' identities. Ciphertext is returned as stored; the
// caller decrypts.
func (r *ConversationRepo) ListConversations(ctx context.Context, userID string, offset, limit int) ([]models.ConversationSummary, error) {
	var conversations []models.Conversation
	err := r.db.SelectContext(ctx, &conversations, `SELECT c.id, c.creator_id, c.first_message_id, c.created_at, c.updated_at
        FROM conversations c
        INNER JOIN participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1
        ORDER BY c.updated_at DESC
        OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return r.buildSummaries(ctx, conversations, userID)
}

// likeEscaper neutralizes LIKE metacharacters so a prefix stays a prefix.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchConversations filters the user's conversations to those where at
// least one other participant's username matches the prefix.
func (r *ConversationRepo) SearchConversations(ctx context.Context, userID, usernamePrefix string, offset, limit int) ([]models.ConversationSummary, error) {
	var conversations []models.Conversation
	err := r.db.SelectContext(ctx, &conversations, `SELECT c.id, c.creator_id, c.first_message_id, c.created_at, c.updated_at
        FROM conversations c
        INNER JOIN participants p ON p.conversation_id = c.id
        WHERE p.user_id = $1
          AND EXISTS(
            SELECT 1 FROM participants p2
            INNER JOIN users u ON u.id = p2.user_id
            WHERE p2.conversation_id = c.id AND p2.user_id <> $1 AND u.username LIKE $2 || '%')
        ORDER BY c.updated_at DESC
        OFFSET $3 LIMIT $4`, userID, likeEscaper.Replace(usernamePrefix), offset, limit)
	if err != nil {
		return nil, err
	}
	return r.buildSummaries(ctx, conversations, userID)
}

func (r *ConversationRepo) buildSummaries(ctx context.Context, conversations []models.Conversation, userID string) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary := models.ConversationSummary{Conversation: conv}

		// A missing key row degrades this entry only, not the whole page.
		err := r.db.GetContext(ctx, &summary.Key,
			`SELECT conversation_id, owner_id, key_encrypted, iv FROM keys WHERE conversation_id=$1 AND owner_id=$2`,
			conv.ID, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		err = r.db.GetContext(ctx, &summary.LatestMessage,
			`SELECT id, conversation_id, author_id, content, created_at FROM messages
             WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT 1`, conv.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		if summary.LatestMessage.ID != "" {
			err = r.db.GetContext(ctx, &summary.LatestRead,
				`SELECT read FROM message_statuses WHERE message_id=$1 AND user_id=$2`,
				summary.LatestMessage.ID, userID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}

		err = r.db.SelectContext(ctx, &summary.Others, `SELECT u.id, u.username, u.tag
            FROM participants p INNER JOIN users u ON u.id = p.user_id
            WHERE p.conversation_id=$1 AND p.user_id <> $2`, conv.ID, userID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}
