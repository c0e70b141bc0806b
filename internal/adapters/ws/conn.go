package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/streamloop/streamloop/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn wraps one websocket with a buffered outbound queue. TrySend
// never blocks; a full queue is reported as ErrBackpressure and the
// frame is lost (signaling and chat are fire-and-forget).
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c, send: make(chan core.Frame, 32)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
