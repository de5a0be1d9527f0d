package httpserver

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecbass/jdp-htmx-chat/internal/broadcast"
)

// TestWebSocketPush drives the whole pipeline with a real hub: a viewer
// connects over websocket, a logged-in visitor posts over HTTP, and the
// rendered message arrives on the push stream.
func TestWebSocketPush(t *testing.T) {
	sessions := newMockSessionRepo()
	users := newMockUserRepo()
	messages := newMockMessageRepo(users)

	greeting := []byte(`<div id="board-status">connected</div>`)
	hub := broadcast.NewHub(clockwork.NewRealClock(), greeting, 100)
	t.Cleanup(func() { hub.Stop() })

	srv, err := NewServer(testConfig(), clockwork.NewRealClock(), sessions, users, messages, hub, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	// Viewer connects first and receives the greeting.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, greeting, msg)

	// A visitor logs in and posts through the regular HTTP flow.
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.PostForm(ts.URL+"/login", url.Values{"name": {"alice"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.PostForm(ts.URL+"/messages", url.Values{"message": {"hello from http"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The viewer receives the rendered message.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "hello from http")
	assert.Contains(t, string(msg), "alice")
}

func TestWebSocketPush_MultipleViewers(t *testing.T) {
	sessions := newMockSessionRepo()
	users := newMockUserRepo()
	messages := newMockMessageRepo(users)

	hub := broadcast.NewHub(clockwork.NewRealClock(), nil, 100)
	t.Cleanup(func() { hub.Stop() })

	srv, err := NewServer(testConfig(), clockwork.NewRealClock(), sessions, users, messages, hub, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	viewers := make([]*ws.Conn, 0, 3)
	for range 3 {
		conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		viewers = append(viewers, conn)
	}

	// Wait until the hub has all three registered.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 3, hub.ClientCount())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = client.PostForm(ts.URL+"/login", url.Values{"name": {"bob"}})
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = client.PostForm(ts.URL+"/messages", url.Values{"message": {"fan out"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for i, conn := range viewers {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "viewer %d should receive the broadcast", i)
		assert.Contains(t, string(msg), "fan out")
	}
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	sessions := newMockSessionRepo()
	users := newMockUserRepo()
	messages := newMockMessageRepo(users)

	hub := broadcast.NewHub(clockwork.NewRealClock(), nil, 100)
	t.Cleanup(func() { hub.Stop() })

	srv, err := NewServer(testConfig(), clockwork.NewRealClock(), sessions, users, messages, hub, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.ClientCount())
}
