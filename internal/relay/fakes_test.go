package relay

import (
	"context"
	"encoding/json"
	"sync"

	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
)

// fakeConn records what was sent to it. limit < 0 means unbounded.
type fakeConn struct {
	id    string
	limit int

	mu     sync.Mutex
	state  ws.State
	sent   [][]byte
	closed int

	closeCode   int
	closeReason string

	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:      id,
		limit:   -1,
		state:   ws.StateOpen,
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) State() ws.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) setState(s ws.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == ws.StateClosed:
		return ws.ErrConnClosed
	case c.state != ws.StateOpen:
		return ws.ErrNotOpen
	case c.limit >= 0 && len(c.sent) >= c.limit:
		return ws.ErrSendQueueFull
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.CloseWithReason(1000, "")
	return nil
}

func (c *fakeConn) Open() {
	c.mu.Lock()
	if c.state == ws.StateConnecting {
		c.state = ws.StateOpen
	}
	c.mu.Unlock()
}

func (c *fakeConn) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(b)
}

func (c *fakeConn) Listen(ctx context.Context, handle func(msg []byte)) error {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return nil
		case <-c.done:
			return nil
		case msg := <-c.inbound:
			handle(msg)
		}
	}
}

func (c *fakeConn) CloseWithReason(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = ws.StateClosed
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
	})
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}
