package models

import "time"

// Message is an immutable ciphertext record. Content is the hex output of
// the conversation cipher, never plaintext.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	AuthorID       string    `db:"author_id" json:"author_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessageStatus tracks the read flag of one message for one participant.
// It flips false to true exactly once and never reverses.
type MessageStatus struct {
	MessageID string `db:"message_id" json:"message_id"`
	UserID    string `db:"user_id" json:"user_id"`
	Read      bool   `db:"read" json:"read"`
}

// MessageView is a decrypted message together with the requester's read flag.
type MessageView struct {
	Message
	Read bool `json:"read"`
}

// SocketEvent is emitted over websocket connections.
type SocketEvent struct {
	Type    string    `json:"type"`
	From    string    `json:"from,omitempty"`
	Content string    `json:"content,omitempty"`
	Date    time.Time `json:"date,omitempty"`
}
