package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dom/learnhub-api/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConn returns the server side of a live websocket connection and the
// client side dialled against it.
func newTestConn(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of websocket never arrived")
	}
	return server, client
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub(logging.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestHub_SessionsRevoked(t *testing.T) {
	hub := startHub(t)

	userID := uuid.New()
	revoked, kept := uuid.New(), uuid.New()

	serverA, clientA := newTestConn(t)
	serverB, clientB := newTestConn(t)
	a := NewClient(hub, serverA, userID, revoked)
	b := NewClient(hub, serverB, userID, kept)
	hub.Register(a)
	hub.Register(b)
	go a.WritePump()
	go b.WritePump()

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(revoked) == 1 && hub.ConnectionCount(kept) == 1
	}, time.Second, 5*time.Millisecond)

	hub.SessionsRevoked(userID, []uuid.UUID{revoked})

	clientA.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientA.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"SESSION_REVOKED"`)
	assert.Contains(t, string(data), revoked.String())

	_, _, err = clientA.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	assert.Equal(t, 0, hub.ConnectionCount(revoked))
	assert.Equal(t, 1, hub.ConnectionCount(kept))

	clientB.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = clientB.ReadMessage()
	assert.Error(t, err, "the other session receives nothing")
}

func TestHub_UnknownSessionIsNoop(t *testing.T) {
	hub := startHub(t)

	hub.SessionsRevoked(uuid.New(), []uuid.UUID{uuid.New()})
	hub.SessionsRevoked(uuid.New(), nil)

	assert.Equal(t, 0, hub.ConnectionCount(uuid.New()))
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(logging.Discard())
	go hub.Run()

	server, client := newTestConn(t)
	c := NewClient(hub, server, uuid.New(), uuid.New())
	hub.Register(c)
	go c.WritePump()

	hub.Stop()
	hub.Stop()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)

	// Calls after Stop must not block.
	hub.SessionsRevoked(uuid.New(), []uuid.UUID{uuid.New()})
	hub.Unregister(c)
}
