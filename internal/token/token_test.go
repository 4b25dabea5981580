package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshchocolatine/ake-api/internal/kv"
)

func TestIssueAndAuthenticateOnce(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)
	require.Contains(t, issued.Token, ":")

	tokenID, err := svc.Authenticate(ctx, issued.Token, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, tokenID)

	// single use: the same token never authenticates twice
	_, err = svc.Authenticate(ctx, issued.Token, "u1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateWrongUser(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, issued.Token, "u2")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateTamperedToken(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "u1", 10*time.Minute)
	require.NoError(t, err)

	// flip one byte of the secret
	flipped := []byte(issued.Token)
	flipped[len(flipped)-1] ^= 0x01
	_, err = svc.Authenticate(ctx, string(flipped), "u1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMalformedTokens(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	for _, presented := range []string{"", "no-separator", "%%%:secret", strings.Repeat(":", 5)} {
		_, err := svc.Authenticate(ctx, presented, "u1")
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", presented)
	}
}

func TestTokenExpires(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "u1", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = svc.Authenticate(ctx, issued.Token, "u1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPresenceLifecycle(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, svc.Connect(ctx, "u1", Presence{SocketID: "s-1", Username: "alice"}, time.Minute))

	presence, err := svc.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", presence.SocketID)
	assert.Equal(t, "alice", presence.Username)

	require.NoError(t, svc.Disconnect(ctx, "u1"))
	_, err = svc.Lookup(ctx, "u1")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
