package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestConn_SendBeforeOpen(t *testing.T) {
	c := NewConn(nil, DefaultOptions())

	if c.State() != StateConnecting {
		t.Fatalf("state = %s, want connecting", c.State())
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v, want ErrNotOpen", err)
	}
}

func TestConn_FullQueueDrops(t *testing.T) {
	c := NewConn(nil, Options{SendQueueSize: 1})
	// open without a write pump so the queue is never drained
	c.state.Store(int32(StateOpen))

	if err := c.Send([]byte("first")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send([]byte("second")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("err = %v, want ErrSendQueueFull", err)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	c := NewConn(nil, DefaultOptions())
	c.state.Store(int32(StateOpen))

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %s, want closed", c.State())
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("err = %v, want ErrConnClosed", err)
	}

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed")
	}
}

func TestConn_EchoRoundTrip(t *testing.T) {
	listenErr := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, DefaultOptions())
		if err != nil {
			listenErr <- err
			return
		}
		c.Open()
		listenErr <- c.Listen(context.Background(), func(msg []byte) {
			_ = c.Send(append([]byte("echo:"), msg...))
		})
		c.Close()
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "echo:hi" {
		t.Fatalf("got %q, want echo:hi", got)
	}

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()

	select {
	case err := <-listenErr:
		if err != nil {
			t.Fatalf("Listen returned %v, want nil on normal close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Listen did not return after client close")
	}
}

func TestConn_ContextCancelClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	closed := make(chan State, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r, DefaultOptions())
		if err != nil {
			return
		}
		c.Open()
		_ = c.Listen(ctx, func([]byte) {})
		closed <- c.State()
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	cancel()

	select {
	case st := <-closed:
		if st != StateClosed {
			t.Fatalf("state = %s, want closed", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session not closed after cancel")
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("client err = %v, want going-away close", err)
	}
}
