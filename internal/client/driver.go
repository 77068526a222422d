package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("driver client is not connected")
	ErrClientClosed = errors.New("driver client is closed")
)

type Config struct {
	// BaseURL of the relay, e.g. ws://localhost:8080
	BaseURL  string
	Identity string

	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime of one reconnect; 0 retries until the context is done.
	MaxElapsedTime time.Duration
	WriteWait      time.Duration
}

// DriverClient publishes locations for one driver identity. When the
// connection drops it reconnects with exponential backoff and re-sends the
// last location it knows, so subscribers never keep a stale position longer
// than the outage.
type DriverClient struct {
	cfg    Config
	dialer *websocket.Dialer
	l      logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	last   *models.LocationUpdate
	closed bool

	reconnects int
}

func NewDriverClient(cfg Config, l logger.Logger) *DriverClient {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}

	return &DriverClient{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		l:      l,
	}
}

func (c *DriverClient) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u.Path = "/driver/" + url.PathEscape(c.cfg.Identity)
	return u.String(), nil
}

// Connect dials the relay, retrying with backoff, and keeps the connection
// alive until ctx is done or Close is called.
func (c *DriverClient) Connect(ctx context.Context) error {
	const op = "DriverClient.Connect"
	ctx = wrap.WithDriverID(wrap.WithAction(ctx, "driver_client_connect"), c.cfg.Identity)

	conn, err := c.dial(ctx)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if err := c.attach(ctx, conn); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (c *DriverClient) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = c.cfg.MaxElapsedTime

	return backoff.RetryNotifyWithData[*websocket.Conn](func() (*websocket.Conn, error) {
		if c.isClosed() {
			return nil, backoff.Permanent(ErrClientClosed)
		}
		conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
		return conn, err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.l.Warn(ctx, "relay dial failed", "err", err.Error(), "retry_in", wait.String())
	})
}

// attach makes conn current, re-sends the last location and starts watching it.
func (c *DriverClient) attach(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	last := c.last
	var err error
	if last != nil {
		err = c.writeLocked(*last)
	}
	c.mu.Unlock()

	if err != nil {
		c.l.Warn(ctx, "failed to re-send last location", "err", err.Error())
	}

	go c.watch(ctx, conn)
	return nil
}

// watch reads until conn fails and then reconnects. The relay never sends to
// drivers, so reading only surfaces close frames and errors.
func (c *DriverClient) watch(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()
	conn.Close()

	if closed || ctx.Err() != nil {
		return
	}

	c.l.Info(ctx, "relay connection lost, reconnecting")
	next, err := c.dial(ctx)
	if err != nil {
		c.l.Error(ctx, "giving up reconnecting to relay", err)
		return
	}

	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()

	if err := c.attach(ctx, next); err != nil {
		c.l.Debug(ctx, "reconnected client discarded", "err", err.Error())
	}
}

// Send publishes update and remembers it as the last location. A failed write
// closes the connection; the reconnect re-sends update.
func (c *DriverClient) Send(update models.LocationUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	c.last = &update
	if c.conn == nil {
		return ErrNotConnected
	}

	if err := c.writeLocked(update); err != nil {
		_ = c.conn.Close()
		return fmt.Errorf("send location: %w", err)
	}
	return nil
}

func (c *DriverClient) writeLocked(update models.LocationUpdate) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteJSON(update)
}

// Reconnects reports how many times the client reconnected.
func (c *DriverClient) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *DriverClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close sends a normal close frame and stops reconnecting.
func (c *DriverClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteWait),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}
