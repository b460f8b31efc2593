package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

// connPair upgrades one connection through a real HTTP server and hands
// back both ends.
func connPair(t *testing.T) (server *websocket.Conn, peer *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = peer.Close() })

	server = <-serverCh
	return server, peer
}

func TestPushDeliversTextFrame(t *testing.T) {
	serverConn, peer := connPair(t)
	client := NewClient(serverConn, clockwork.NewRealClock(), nil)
	defer client.Close("test done")

	msg := domain.NewMessage(domain.TypeLog).
		With("analysisId", "an-1").
		With("message", "hello")
	require.NoError(t, client.Push(msg))

	kind, data, err := peer.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "log", decoded["type"])
	assert.Equal(t, "an-1", decoded["analysisId"])
	assert.Equal(t, "hello", decoded["message"])
}

func TestCloseSendsCloseFrame(t *testing.T) {
	serverConn, peer := connPair(t)
	client := NewClient(serverConn, clockwork.NewRealClock(), nil)

	client.Close("stale connection evicted")

	_, _, err := peer.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "stale connection evicted", closeErr.Text)
}

func TestCloseIsIdempotent(t *testing.T) {
	serverConn, _ := connPair(t)
	client := NewClient(serverConn, clockwork.NewRealClock(), nil)

	client.Close("first")
	client.Close("second")
}

func TestPushAfterCloseFails(t *testing.T) {
	serverConn, _ := connPair(t)
	client := NewClient(serverConn, clockwork.NewRealClock(), nil)
	client.Close("done")

	err := client.Push(domain.NewMessage(domain.TypeHeartbeat))
	assert.ErrorIs(t, err, errClosed)
}

func TestPushFullBufferFailsWithoutBlocking(t *testing.T) {
	// Bare client without a writer goroutine: nothing drains the buffer.
	c := &Client{
		sendCh: make(chan []byte, 2),
		doneCh: make(chan struct{}),
	}

	require.NoError(t, c.Push(domain.NewMessage(domain.TypeHeartbeat)))
	require.NoError(t, c.Push(domain.NewMessage(domain.TypeHeartbeat)))

	err := c.Push(domain.NewMessage(domain.TypeHeartbeat))
	assert.ErrorIs(t, err, errBufferFull)
}

func TestPushRejectsUnmarshalableMessage(t *testing.T) {
	c := &Client{
		sendCh: make(chan []byte, 1),
		doneCh: make(chan struct{}),
	}

	err := c.Push(domain.Message{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal message")
}

func TestPongTriggersActivityCallback(t *testing.T) {
	serverConn, peer := connPair(t)
	clock := clockwork.NewFakeClockAt(time.Now())

	activity := make(chan struct{}, 1)
	client := NewClient(serverConn, clock, func() {
		select {
		case activity <- struct{}{}:
		default:
		}
	})
	defer client.Close("test done")

	// The peer's default ping handler answers pongs while it reads.
	go func() {
		for {
			if _, _, err := peer.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go client.ReadLoop()

	clock.BlockUntil(1)
	clock.Advance(pingInterval)

	select {
	case <-activity:
	case <-time.After(2 * time.Second):
		t.Fatal("pong never reached the activity callback")
	}
}
