package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wshchocolatine/ake-api/internal/kv"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

// Session carries the authenticated user and their decrypted private key.
// The key lives only in this expiring record and in request-scoped context;
// it is never written to the relational store.
type Session struct {
	UserID     string `json:"user_id"`
	PrivateKey string `json:"private_key"`
}

// Store keeps sessions in an expiring key-value store.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

func NewStore(store kv.Store, ttl time.Duration) *Store {
	return &Store{kv: store, ttl: ttl}
}

// Create opens a session and returns its opaque id.
func (s *Store) Create(ctx context.Context, sess Session) (string, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.kv.Set(ctx, keyPrefix+id, string(payload), s.ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Get resolves a session id.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	stored, err := s.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(stored), &sess); err != nil {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Destroy removes a session.
func (s *Store) Destroy(ctx context.Context, id string) error {
	return s.kv.Del(ctx, keyPrefix+id)
}
