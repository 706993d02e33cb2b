package webrepl

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Client wraps a WebSocket connection to a WebREPL device. It owns the
// read loop that dispatches inbound messages into the Session and
// serializes outbound writes.
type Client struct {
	*Session

	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// Dial connects to a WebREPL device and starts the session. rawURL is
// a ws:// or wss:// URL, typically ws://<device>:8266/.
//
// The returned client is not usable for transfers until the password
// handshake completes; call WaitReady first.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid device URL %q: %w", rawURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid device URL %q: scheme must be ws or wss", rawURL)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c := &Client{
		conn: conn,
		done: make(chan struct{}),
	}
	c.Session = NewSession(c, opts...)

	if limit := c.config.MaxMessageSize; limit > 0 {
		conn.SetReadLimit(limit)
	}

	go c.readLoop()

	return c, nil
}

// readLoop continuously reads messages from the WebSocket connection
// and dispatches each one once, at the boundary: text messages to the
// console/auth handler, binary messages to the transfer engine. It
// exits when the connection closes, failing any in-flight transfer.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Error("read error")
			}
			c.HandleClosed(err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.HandleBinaryMessage(msg)
		case websocket.TextMessage:
			c.HandleTextMessage(msg)
		}
	}
}

// WriteBinary sends one binary message to the device.
func (c *Client) WriteBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// WriteText sends one text message to the device.
func (c *Client) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close performs a clean WebSocket close and waits for the read loop
// to exit.
func (c *Client) Close() error {
	c.HandleClosed(nil)

	c.writeMu.Lock()
	// Best effort; the device may already be gone.
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
