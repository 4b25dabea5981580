package models

import "time"

// Conversation is created once, atomically, together with its participants,
// per-participant wrapped keys and first message.
type Conversation struct {
	ID             string    `db:"id" json:"id"`
	CreatorID      string    `db:"creator_id" json:"creator_id"`
	FirstMessageID string    `db:"first_message_id" json:"first_message_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Participant links a user to a conversation. Rows are immutable.
type Participant struct {
	UserID         string    `db:"user_id" json:"user_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Key is a conversation's symmetric key wrapped under one participant's
// public key. The raw key is identical across a conversation's rows, only
// its wrapped representation differs. The IV is shared by all rows.
type Key struct {
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	OwnerID        string `db:"owner_id" json:"owner_id"`
	KeyEncrypted   string `db:"key_encrypted" json:"-"`
	IV             string `db:"iv" json:"-"`
}

// ConversationSummary is one row of a conversation listing: the conversation,
// the requester's wrapped key, the latest message and the other participants.
type ConversationSummary struct {
	Conversation  Conversation
	Key           Key
	LatestMessage Message
	LatestRead    bool
	Others        []Identity
}

// ConversationEntry is the decrypted, API-facing form of a summary. Entries
// whose key row is missing or undecryptable carry Error instead of content.
type ConversationEntry struct {
	ConversationID string     `json:"conversation_id"`
	Participants   []Identity `json:"participants,omitempty"`
	LastMessage    string     `json:"last_message,omitempty"`
	LastAuthorID   string     `json:"last_author_id,omitempty"`
	LastMessageAt  time.Time  `json:"last_message_at,omitempty"`
	LastRead       bool       `json:"last_read"`
	Error          string     `json:"error,omitempty"`
}
