// Package ws serves the notification channel over websockets.
package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/layer-3/kusaidia/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// CloseSessionRevoked is the close code sent when the session behind a connection is revoked.
const CloseSessionRevoked = 4001

// Connection is one authenticated websocket bound to an account and the session it was opened with.
// Writes go through a buffered queue drained by a single writer goroutine.
type Connection struct {
	id        string
	accountID string
	refreshID string
	socket    *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode atomic.Int32
}

// NewConnection wraps an upgraded socket
func NewConnection(id, accountID, refreshID string, socket *websocket.Conn) *Connection {
	return &Connection{
		id:        id,
		accountID: accountID,
		refreshID: refreshID,
		socket:    socket,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) AccountID() string { return c.accountID }
func (c *Connection) RefreshID() string { return c.refreshID }

// Enqueue queues msg for delivery without blocking. A client that cannot keep up is disconnected.
func (c *Connection) Enqueue(msg core.Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.Close(websocket.ClosePolicyViolation)
		return false
	}
}

// Close stops the writer, which sends a close frame with code before closing the socket.
func (c *Connection) Close(code int) {
	c.closeOnce.Do(func() {
		c.closeCode.Store(int32(code))
		close(c.done)
	})
}

// Done is closed once the connection starts shutting down
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writeLoop owns every write to the socket
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseAbnormalClosure)
				return
			}
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close(websocket.CloseAbnormalClosure)
				return
			}
		case <-c.done:
			c.flush()
			code := int(c.closeCode.Load())
			if code != websocket.CloseAbnormalClosure {
				_ = c.socket.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, closeReason(code)),
					time.Now().Add(writeWait))
			}
			return
		}
	}
}

// flush writes frames that were queued before shutdown began
func (c *Connection) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func closeReason(code int) string {
	switch code {
	case CloseSessionRevoked:
		return "session revoked"
	case websocket.CloseGoingAway:
		return "server shutting down"
	case websocket.ClosePolicyViolation:
		return "client too slow"
	default:
		return ""
	}
}
