package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshchocolatine/ake-api/internal/models"
)

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Add("u1", conn, ConnInfo{SocketID: "s-1", UserID: "u1", ConnectedAt: time.Now()})
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	// wait for registration
	require.Eventually(t, func() bool {
		_, ok := hub.Info("u1")
		return ok
	}, time.Second, 10*time.Millisecond)

	sent := models.SocketEvent{Type: "message", From: "u2", Content: "hello"}
	require.NoError(t, hub.SendToUser("u1", sent))

	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var received models.SocketEvent
	require.NoError(t, json.Unmarshal(raw, &received))
	assert.Equal(t, sent.Content, received.Content)
	assert.Equal(t, "u2", received.From)
}

func TestHubSendToDisconnectedUser(t *testing.T) {
	hub := NewHub()
	err := hub.SendToUser("nobody", models.SocketEvent{Type: "message"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHubRemoveOnlyCurrentConn(t *testing.T) {
	hub := NewHub()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Add("u1", conn, ConnInfo{SocketID: newSocketID(), UserID: "u1"})
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		_, ok := hub.Info("u1")
		return ok
	}, time.Second, 10*time.Millisecond)

	// Removing with a stale conn must not evict the live one.
	staleConn := &websocket.Conn{}
	hub.Remove("u1", staleConn)
	_, ok := hub.Info("u1")
	assert.True(t, ok)
}
