package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/wshchocolatine/ake-api/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage bundles a message with its per-participant status rows; the
// insert is atomic.
type NewMessage struct {
	Message  models.Message
	Statuses []models.MessageStatus
}

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, nm NewMessage) error
	ListMessages(ctx context.Context, conversationID, userID string, offset, limit int) ([]models.MessageView, error)
	MarkRead(ctx context.Context, messageID, userID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage inserts the message and its status rows and bumps the
// conversation's activity timestamp, all in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, nm NewMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1)`, nm.Message.ConversationID); err != nil {
		return err
	}
	if !exists {
		err = ErrConversationNotFound
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, content) VALUES ($1, $2, $3, $4)`,
		nm.Message.ID, nm.Message.ConversationID, nm.Message.AuthorID, nm.Message.Content); err != nil {
		return err
	}
	for _, status := range nm.Statuses {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO message_statuses (message_id, user_id, read) VALUES ($1, $2, $3)`,
			status.MessageID, status.UserID, status.Read); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at=NOW() WHERE id=$1`, nm.Message.ConversationID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListMessages returns a page of messages most-recent-first, each carrying
// the requester's read flag. Content is ciphertext; the caller decrypts.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID, userID string, offset, limit int) ([]models.MessageView, error) {
	var views []models.MessageView
	err := r.db.SelectContext(ctx, &views, `SELECT m.id, m.conversation_id, m.author_id, m.content, m.created_at,
            COALESCE(ms.read, FALSE) AS read
        FROM messages m
        LEFT JOIN message_statuses ms ON ms.message_id = m.id AND ms.user_id = $2
        WHERE m.conversation_id = $1
        ORDER BY m.created_at DESC
        OFFSET $3 LIMIT $4`, conversationID, userID, offset, limit)
	return views, err
}

// MarkRead flips to read every unread status the user has in the message's
// conversation up to and including the message's creation time. Unread to
// read only; repeated calls change nothing further.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var target models.Message
	err = tx.GetContext(ctx, &target,
		`SELECT id, conversation_id, author_id, content, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrMessageNotFound
		return err
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE message_statuses ms SET read = TRUE
        FROM messages m
        WHERE ms.message_id = m.id
          AND ms.user_id = $1
          AND m.conversation_id = $2
          AND m.created_at <= $3
          AND ms.read = FALSE`,
		userID, target.ConversationID, target.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}
