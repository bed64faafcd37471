package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type event struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubBacklogAndLive(t *testing.T) {
	hub := NewHub(2)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Publish(event{Type: "transcript", Text: "hello"})

	conn := dial(t, srv)
	require.Equal(t, event{Type: "transcript", Text: "hello"}, readEvent(t, conn))

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(event{Type: "response", Text: "hi dear"})
	require.Equal(t, event{Type: "response", Text: "hi dear"}, readEvent(t, conn))
}

func TestHubCapacity(t *testing.T) {
	hub := NewHub(1)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 503, resp.StatusCode)
}

func TestHubBacklogBounded(t *testing.T) {
	hub := NewHub(1)
	for i := 0; i < backlogSize+10; i++ {
		hub.Publish(event{Type: "metrics"})
	}
	require.Len(t, hub.backlog, backlogSize)
}
