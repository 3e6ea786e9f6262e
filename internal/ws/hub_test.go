package ws

import (
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToConnectedClients(t *testing.T) {
	hub := NewHub(log.New(io.Discard, "", 0))
	done := make(chan struct{})
	defer close(done)
	go hub.Run(done)

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the register message time to land before broadcasting.
	require.Eventually(t, func() bool {
		hub.Broadcast([]byte(`{"kind":"started"}`))
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, payload, readErr := conn.ReadMessage()
		return readErr == nil && string(payload) == `{"kind":"started"}`
	}, 2*time.Second, 50*time.Millisecond)
}

func TestHubSurvivesClientDisconnect(t *testing.T) {
	hub := NewHub(log.New(io.Discard, "", 0))
	done := make(chan struct{})
	defer close(done)
	go hub.Run(done)

	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	// Broadcast after disconnect must not panic or block.
	for i := 0; i < 5; i++ {
		hub.Broadcast([]byte("ping"))
	}
}
