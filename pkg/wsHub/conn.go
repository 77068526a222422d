package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrNotOpen       = errors.New("connection is not open yet")
	ErrConnClosed    = errors.New("connection is closed")
	ErrSendQueueFull = errors.New("send queue is full")
)

// State of a connection. Connecting -> Open -> Closed, Closed is terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options tune a single connection.
type Options struct {
	SendQueueSize  int
	PingInterval   time.Duration // 0 disables pings and the pong deadline
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		SendQueueSize:  32,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 8192,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// no origin policy: connections are not authenticated in this service
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade switches the HTTP request to a websocket and wraps it.
// The returned connection is still Connecting.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options) (*Conn, error) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewConn(wsConn, opts), nil
}

// Conn is one websocket session. Writes go through a bounded queue drained by a
// single write pump, so Send never blocks the caller.
type Conn struct {
	id   string
	conn *websocket.Conn
	opts Options

	send      chan []byte
	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewConn(conn *websocket.Conn, opts Options) *Conn {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultOptions().SendQueueSize
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultOptions().WriteWait
	}

	return &Conn{
		id:   uuid.NewString(),
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection reaches Closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Open moves Connecting -> Open and starts the write pump. Calling it again is a no-op.
func (c *Conn) Open() {
	if c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		go c.writePump()
	}
}

// Send queues msg for delivery. It never blocks: a full queue returns ErrSendQueueFull
// and the message is dropped.
func (c *Conn) Send(msg []byte) error {
	switch c.State() {
	case StateConnecting:
		return ErrNotOpen
	case StateClosed:
		return ErrConnClosed
	}

	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendJSON marshals v and queues it.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.Send(data)
}

// Listen reads frames and hands text/binary payloads to handle until the peer goes
// away, a read fails, the pong deadline passes or ctx is cancelled. A normal close
// by the peer returns nil.
func (c *Conn) Listen(ctx context.Context, handle func(msg []byte)) error {
	if c.conn == nil {
		return ErrConnClosed
	}

	go func() {
		select {
		case <-ctx.Done():
			c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		case <-c.done:
		}
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	if c.opts.PingInterval > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		})
	}

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return c.closeErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handle(data)
	}
}

func (c *Conn) writePump() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail(fmt.Errorf("write failed: %w", err))
				return
			}

		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.fail(fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

// fail closes the connection because of a transport error.
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		c.shutdown(websocket.CloseInternalServerErr, "")
	})
}

// Close closes the connection normally. It is idempotent.
func (c *Conn) Close() error {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
	return nil
}

// CloseWithReason sends a close frame with code and reason and releases the
// connection. Only the first call has an effect.
func (c *Conn) CloseWithReason(code int, reason string) {
	c.closeOnce.Do(func() {
		c.shutdown(code, reason)
	})
}

func (c *Conn) shutdown(code int, reason string) {
	c.state.Store(int32(StateClosed))
	close(c.done)

	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.opts.WriteWait),
	)
	_ = c.conn.Close()
}
