package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wshchocolatine/ake-api/internal/kv"
)

// ErrInvalidToken covers every authentication failure: missing record, hash
// mismatch or malformed token. Callers get no signal about which check failed.
var ErrInvalidToken = errors.New("invalid socket token")

const (
	tokenKeyPrefix    = "sockets:"
	presenceKeyPrefix = "presence:"
	secretBytes       = 45 // 60 base64 characters
)

// OpaqueToken is what the caller receives. Token is the only copy of the
// secret; the server keeps a hash.
type OpaqueToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type persistedToken struct {
	TokenHash string `json:"token_hash"`
}

// Presence maps a connected user to their live socket endpoint.
type Presence struct {
	SocketID string `json:"socket_id"`
	Username string `json:"username"`
}

// Service issues and authenticates single-use socket tokens and keeps the
// presence registry, both in an expiring key-value store.
type Service struct {
	store kv.Store
}

func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// Issue generates a single-use bearer token for the realtime channel. The
// stored record holds only a hash of the secret, keyed by token id and user
// id, and expires after ttl.
func (s *Service) Issue(ctx context.Context, userID string, ttl time.Duration) (OpaqueToken, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return OpaqueToken{}, fmt.Errorf("generate token secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	tokenID := uuid.NewString()

	payload, err := json.Marshal(persistedToken{TokenHash: hashSecret(secret)})
	if err != nil {
		return OpaqueToken{}, err
	}
	if err := s.store.Set(ctx, tokenKey(tokenID, userID), string(payload), ttl); err != nil {
		return OpaqueToken{}, fmt.Errorf("store token: %w", err)
	}

	return OpaqueToken{
		Token:     base64.RawURLEncoding.EncodeToString([]byte(tokenID)) + ":" + secret,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// Authenticate consumes a presented token. The record is removed atomically
// on lookup, so a token authenticates at most once even under concurrent
// presentation. Returns the token id on success.
func (s *Service) Authenticate(ctx context.Context, presented, userID string) (string, error) {
	parts := strings.SplitN(presented, ":", 2)
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}
	rawID, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	tokenID := string(rawID)

	stored, err := s.store.GetDel(ctx, tokenKey(tokenID, userID))
	if err != nil {
		return "", ErrInvalidToken
	}
	var record persistedToken
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return "", ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(record.TokenHash), []byte(hashSecret(parts[1]))) != 1 {
		return "", ErrInvalidToken
	}
	return tokenID, nil
}

// Connect records the user as present on the given socket endpoint.
func (s *Service) Connect(ctx context.Context, userID string, presence Presence, ttl time.Duration) error {
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, presenceKeyPrefix+userID, string(payload), ttl)
}

// Lookup returns the presence entry for a user, or kv.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, userID string) (Presence, error) {
	stored, err := s.store.Get(ctx, presenceKeyPrefix+userID)
	if err != nil {
		return Presence{}, err
	}
	var presence Presence
	if err := json.Unmarshal([]byte(stored), &presence); err != nil {
		return Presence{}, err
	}
	return presence, nil
}

// Disconnect removes the user's presence entry.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.store.Del(ctx, presenceKeyPrefix+userID)
}

func tokenKey(tokenID, userID string) string {
	return tokenKeyPrefix + tokenID + userID
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
