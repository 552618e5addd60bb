// Package sink adapts live transport connections to the event fan-out
// contract. The only implementation is the websocket sink; everything
// upstream speaks contract.Conn and never sees the socket.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opschat/domain"
	"opschat/domain/event"
	"opschat/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WSConn binds one websocket to one authenticated identity for its
// lifetime. Outbound frames go through a buffered channel drained by a
// single write loop, so Deliver is safe from any goroutine.
type WSConn struct {
	id       string
	identity domain.Identity
	ws       *websocket.Conn
	send     chan []byte
	closed   chan struct{}
	once     sync.Once
	log      *slog.Logger
}

func NewWSConn(log *slog.Logger, identity domain.Identity, ws *websocket.Conn, bufferSize int) *WSConn {
	return &WSConn{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, bufferSize),
		closed:   make(chan struct{}),
		log:      log,
	}
}

func (c *WSConn) ID() string                { return c.id }
func (c *WSConn) Identity() domain.Identity { return c.identity }

// Start launches the write loop. Call it exactly once per connection.
func (c *WSConn) Start() {
	go c.writeLoop()
}

// Deliver enqueues a frame for the write loop. If the client is too slow
// and the buffer fills up, the connection is closed to keep backpressure
// bounded; reconciliation catches the client up after it reconnects.
func (c *WSConn) Deliver(frame event.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.EventType(), err)
	}
	select {
	case <-c.closed:
		return errors.ErrConnClosed
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return fmt.Errorf("%w: send buffer full", errors.ErrConnClosed)
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// more than once.
func (c *WSConn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// ReadLoop consumes inbound client signals until the socket breaks, then
// returns. Malformed frames are logged and skipped; the transport decides
// nothing, every signal is handed to the given handler.
func (c *WSConn) ReadLoop(handle func(signal event.Inbound)) {
	defer c.Close()

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var signal event.Inbound
		if err := json.Unmarshal(payload, &signal); err != nil {
			c.log.Debug("Discarding malformed client frame",
				"user_id", c.identity.UserID, "error", err)
			continue
		}
		handle(signal)
	}
}

func (c *WSConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed, closing connection",
					"user_id", c.identity.UserID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
