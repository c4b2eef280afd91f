package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aaronBIOO/QuickChat/internal/logging"
)

var (
	// ErrQueueFull means the client is not draining its outbound queue.
	ErrQueueFull = errors.New("ws: send queue full")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("ws: connection closed")
)

// Frame is the envelope of every server-to-client message.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Options are the per-connection transport limits.
type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return o.PongTimeout * 9 / 10
}

// Client is one upgraded connection. Frames are queued by Send and written
// by a single writer goroutine, so Send never touches the socket.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	opts   Options

	mu     sync.Mutex
	send   chan []byte
	closed bool

	done chan struct{}
}

func newClient(userID string, conn *websocket.Conn, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send encodes and queues a frame. It fails instead of blocking when the
// queue is full or the client is closed.
func (c *Client) Send(event string, data any) error {
	b, err := json.Marshal(Frame{Type: event, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// Done is closed once the write pump has exited and the socket is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// readPump consumes inbound frames only to keep the pong deadline fresh.
// It returns when the peer goes away or the deadline passes.
func (c *Client) readPump() {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("ws read")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("ws write")
				c.Close()
				drain(c.send)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				drain(c.send)
				return
			}
		}
	}
}

func drain(ch <-chan []byte) {
	for range ch {
	}
}
