package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/layer-3/kusaidia/core"
)

const (
	readWait  = 70 * time.Second
	writeWait = 10 * time.Second
)

// Conn is an open notification channel.
type Conn interface {
	// ReadMessage blocks for the next frame. Frames that fail validation are
	// reported as core.ErrInvalidMessage and the connection stays usable.
	ReadMessage() (core.Message, error)
	WriteMessage(msg core.Message) error
	Close() error
}

// Dialer opens a notification channel authenticated by an access token.
type Dialer interface {
	Dial(ctx context.Context, accessToken string) (Conn, error)
}

// WebsocketDialer dials the server's websocket endpoint, passing the token as ?token=.
type WebsocketDialer struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewWebsocketDialer(rawURL string) *WebsocketDialer {
	return &WebsocketDialer{URL: rawURL, Dialer: websocket.DefaultDialer}
}

func (d *WebsocketDialer) Dial(ctx context.Context, accessToken string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", accessToken)
	u.RawQuery = q.Encode()

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	socket, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: channel rejected token", core.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrConnectionLost, err)
	}

	c := &wsConn{socket: socket}
	_ = socket.SetReadDeadline(time.Now().Add(readWait))
	socket.SetPingHandler(func(data string) error {
		_ = socket.SetReadDeadline(time.Now().Add(readWait))
		err := socket.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return c, nil
}

type wsConn struct {
	socket  *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() (core.Message, error) {
	_, data, err := c.socket.ReadMessage()
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: %v", core.ErrConnectionLost, err)
	}
	_ = c.socket.SetReadDeadline(time.Now().Add(readWait))
	return core.DecodeMessage(data)
}

func (c *wsConn) WriteMessage(msg core.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	return c.socket.Close()
}
