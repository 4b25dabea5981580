package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshchocolatine/ake-api/internal/kv"
)

func TestSessionLifecycle(t *testing.T) {
	store := NewStore(kv.NewMemoryStore(), time.Hour)
	ctx := context.Background()

	id, err := store.Create(ctx, Session{UserID: "u-1", PrivateKey: "pem"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Equal(t, "pem", sess.PrivateKey)

	require.NoError(t, store.Destroy(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionExpiry(t *testing.T) {
	store := NewStore(kv.NewMemoryStore(), 10*time.Millisecond)
	ctx := context.Background()

	id, err := store.Create(ctx, Session{UserID: "u-1"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionUnknownID(t *testing.T) {
	store := NewStore(kv.NewMemoryStore(), time.Hour)
	_, err := store.Get(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}
