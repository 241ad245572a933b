package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

const (
	writeTimeout = 10 * time.Second

	// inbound buffer; reads from the socket stay strictly FIFO, the buffer
	// only decouples the reader goroutine from the consumer
	eventBuffer = 64
)

// ConnectionURL derives the game server endpoint for a (owner, token) pair.
// The identity is a caller-supplied signed credential, opaque to this layer.
func ConnectionURL(base, owner, token, identity string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ws: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath("ws", owner, token)
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// netConn is the connection surface the client needs; *websocket.Conn
// satisfies it.
type netConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one long-lived duplex channel to a per-(owner, token) game
// server. Events are delivered in the order received for the lifetime of the
// connection.
type Client struct {
	conn   netConn
	events chan Envelope

	closeOnce sync.Once
	done      chan struct{}

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

// Dial establishes the channel. A failure here is fatal to the session; no
// automatic reconnect is attempted.
func Dial(base, owner, token, identity string) (*Client, error) {
	endpoint, err := ConnectionURL(base, owner, token, identity)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: connect %s: %w", endpoint, err)
	}

	return newClient(conn), nil
}

func newClient(conn netConn) *Client {
	c := &Client{
		conn:   conn,
		events: make(chan Envelope, eventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events is the inbound stream. The channel closes when the connection
// breaks or Close is called; check Err afterwards.
func (c *Client) Events() <-chan Envelope {
	return c.events
}

// Send writes a request to the socket. Fire-and-forget: no acknowledgement
// is awaited, correctness relies on the event stream.
func (c *Client) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ws: marshal request: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Err reports the terminal read error, if any, after Events has closed.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err != nil && websocket.IsCloseError(c.err, websocket.CloseNormalClosure) {
		return nil
	}
	return c.err
}

// Close releases the connection and the read loop, even if the consumer has
// stopped draining events. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// a malformed or unknown frame is a protocol violation, not
			// something to paper over
			log.Printf("[WS] Dropping undecodable frame: %v", err)
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			c.conn.Close()
			return
		}

		// never park on a full buffer past Close; the reader would leak
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
