// Package websocket adapts gorilla/websocket connections to the engine's
// Sink interface: a per-connection writer goroutine with a bounded send
// buffer, write deadlines, and ping/pong keepalive.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/scstanton20/tago-analysis-worker/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 32
)

var (
	errClosed     = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

// Client owns the outbound half of one WebSocket connection. Push never
// blocks: a full buffer means the client cannot keep up and the engine
// treats it as dead.
type Client struct {
	conn       *websocket.Conn
	clock      clockwork.Clock
	onActivity func()

	sendCh   chan []byte
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient wraps a connection and starts the writer goroutine.
// onActivity, if non-nil, is invoked on every pong so the caller can
// count inbound traffic as liveness.
func NewClient(conn *websocket.Conn, clock clockwork.Clock, onActivity func()) *Client {
	c := &Client{
		conn:       conn,
		clock:      clock,
		onActivity: onActivity,
		sendCh:     make(chan []byte, messageBufferSize),
		doneCh:     make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

// Push queues a message for delivery as a plain text frame. Messages
// carry no event name: clients read them through a generic listener.
func (c *Client) Push(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	select {
	case <-c.doneCh:
		return errClosed
	case c.sendCh <- data:
		return nil
	default:
		return errBufferFull
	}
}

// Close sends a close frame with the given reason and tears the
// connection down. Safe to call more than once.
func (c *Client) Close(reason string) {
	c.stopOnce.Do(func() {
		close(c.doneCh)

		// The writer goroutine must exit before the close frame goes
		// out: the connection tolerates only one writer at a time.
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.conn.Close()
	})
}

func (c *Client) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendCh:
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.doneCh:
			return
		}
	}
}

func (c *Client) configurePongHandler() {
	c.updateReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		if c.onActivity != nil {
			c.onActivity()
		}
		return nil
	})
}

func (c *Client) updateWriteDeadline() {
	_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Client) updateReadDeadline() {
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}

// ReadLoop drains inbound frames until the peer goes away. The engine
// never acts on inbound payloads; the loop exists to service control
// frames and to notice disconnects.
func (c *Client) ReadLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
