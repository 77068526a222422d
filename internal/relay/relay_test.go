package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
	"github.com/gorilla/websocket"
)

type spyFanout struct {
	mu     sync.Mutex
	events []models.LocationEvent
}

func (s *spyFanout) Publish(_ context.Context, event models.LocationEvent) Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return Delivery{}
}

func (s *spyFanout) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRelay(policy types.DuplicatePolicy, opts ...Option) (*Relay, *Registry) {
	reg := NewRegistry(policy, logger.Discard())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(reg, NewRouter(reg, logger.Discard()), logger.Discard(), opts...), reg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_Ingest_InvalidNeverPublished(t *testing.T) {
	reg := NewRegistry(types.PolicyReplaceLatest, logger.Discard())
	spy := &spyFanout{}
	r := New(reg, spy, logger.Discard())

	for _, raw := range []string{`garbage`, `{"latitude":1}`, `{"longitude":1}`, `{}`} {
		if _, err := r.Ingest(context.Background(), types.SourceHTTP, "DRV001", []byte(raw)); err == nil {
			t.Errorf("Ingest(%s) err = nil", raw)
		}
	}
	if n := spy.count(); n != 0 {
		t.Errorf("published %d events, want 0", n)
	}

	if _, err := r.Ingest(context.Background(), types.SourceHTTP, "DRV001", []byte(`{"latitude":1,"longitude":2}`)); err != nil {
		t.Fatalf("valid ingest: %v", err)
	}
	if n := spy.count(); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

func TestRelay_Publish_SinkErrorsDoNotAffectDelivery(t *testing.T) {
	var calls int
	r, reg := newTestRelay(types.PolicyReplaceLatest,
		WithSink("broken", func(context.Context, models.LocationEvent) error {
			calls++
			return errors.New("boom")
		}),
	)

	s := newFakeConn("s")
	_ = reg.RegisterSubscriber("DRV001", s)

	d := r.Publish(context.Background(), types.SourceHTTP, testEvent("DRV001"))
	if d.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", d.Delivered)
	}
	if calls != 1 {
		t.Errorf("sink calls = %d, want 1", calls)
	}
}

func TestRelay_Serve_Unroutable(t *testing.T) {
	r, _ := newTestRelay(types.PolicyReplaceLatest)
	s := newFakeConn("x")

	err := r.Serve(context.Background(), ParseRoute("/unknown/DRV001"), s)
	if !errors.Is(err, types.ErrUnroutable) {
		t.Fatalf("err = %v, want ErrUnroutable", err)
	}
	if s.State() != ws.StateClosed {
		t.Error("session not closed")
	}
}

// Scenario: a subscriber watches DRV001, the driver sends a location, the
// subscriber gets the confirmation and then the stamped event.
func TestRelay_Serve_DriverToSubscriber(t *testing.T) {
	r, reg := newTestRelay(types.PolicyReplaceLatest)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeConn("sub")
	sub.setState(ws.StateConnecting)
	drv := newFakeConn("drv")
	drv.setState(ws.StateConnecting)

	go r.Serve(ctx, NewRoute(PrefixTrack, "DRV001"), sub)
	go r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), drv)

	waitFor(t, func() bool {
		_, ok := reg.Driver("DRV001")
		return ok && len(reg.Subscribers("DRV001")) == 1
	})

	drv.inbound <- []byte(`{"latitude":23.8103,"longitude":90.4125,"speed":30,"timestamp":"2000-01-01T00:00:00Z"}`)

	waitFor(t, func() bool { return len(sub.messages()) == 2 })

	msgs := sub.messages()
	var confirm models.ConnectedMessage
	if err := json.Unmarshal(msgs[0], &confirm); err != nil {
		t.Fatalf("unmarshal confirmation: %v", err)
	}
	if confirm.Type != types.MessageConnected || confirm.DriverIdentity != "DRV001" {
		t.Errorf("confirmation = %+v", confirm)
	}

	var event models.LocationEvent
	if err := json.Unmarshal(msgs[1], &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.DriverIdentity != "DRV001" || event.Speed != 30 || !event.Timestamp.Equal(fixedNow) {
		t.Errorf("event = %+v", event)
	}
	if event.Heading != 0 || event.Accuracy != nil {
		t.Errorf("defaults not applied: %+v", event)
	}
}

// Scenario: an invalid message from the driver reaches nobody and the session
// stays up for the next valid one.
func TestRelay_Serve_InvalidMessageDropped(t *testing.T) {
	r, reg := newTestRelay(types.PolicyReplaceLatest)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := newFakeConn("sub")
	drv := newFakeConn("drv")
	go r.Serve(ctx, NewRoute(PrefixSubscriber, "DRV001"), sub)
	go r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), drv)

	waitFor(t, func() bool {
		_, ok := reg.Driver("DRV001")
		return ok && len(reg.Subscribers("DRV001")) == 1
	})

	drv.inbound <- []byte(`{"latitude":23.8103}`)
	drv.inbound <- []byte(`{"latitude":1,"longitude":2}`)

	waitFor(t, func() bool { return len(sub.messages()) == 2 })

	var event models.LocationEvent
	if err := json.Unmarshal(sub.messages()[1], &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Latitude != 1 || event.Longitude != 2 {
		t.Errorf("event = %+v, want the valid message", event)
	}
	if drv.State() != ws.StateOpen {
		t.Errorf("driver state = %s, want open", drv.State())
	}
}

// Scenario: with replace-latest a second driver connection takes over and the
// first closing later does not evict it.
func TestRelay_Serve_DriverReplaced(t *testing.T) {
	r, reg := newTestRelay(types.PolicyReplaceLatest)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := newFakeConn("first"), newFakeConn("second")

	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), first) }()
	waitFor(t, func() bool { c, ok := reg.Driver("DRV001"); return ok && c.ID() == "first" })

	go r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), second)
	waitFor(t, func() bool { c, ok := reg.Driver("DRV001"); return ok && c.ID() == "second" })

	first.Close()
	if err := <-done; err != nil {
		t.Fatalf("first serve: %v", err)
	}

	if c, ok := reg.Driver("DRV001"); !ok || c.ID() != "second" {
		t.Errorf("driver after stale close = %v, %v; want second", c, ok)
	}
}

func TestRelay_Serve_RejectDuplicate(t *testing.T) {
	r, reg := newTestRelay(types.PolicyRejectDuplicate)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := newFakeConn("first"), newFakeConn("second")
	go r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), first)
	waitFor(t, func() bool { _, ok := reg.Driver("DRV001"); return ok })

	err := r.Serve(ctx, NewRoute(PrefixDriver, "DRV001"), second)
	if !errors.Is(err, types.ErrDriverAlreadyConnected) {
		t.Fatalf("err = %v, want ErrDriverAlreadyConnected", err)
	}
	if second.closeCode != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", second.closeCode, websocket.ClosePolicyViolation)
	}
	if c, _ := reg.Driver("DRV001"); c.ID() != "first" {
		t.Errorf("driver = %s, want first", c.ID())
	}
}

func TestRelay_Serve_SubscriberCleanup(t *testing.T) {
	r, reg := newTestRelay(types.PolicyReplaceLatest)

	sub := newFakeConn("sub")
	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), NewRoute(PrefixTrack, "DRV001"), sub) }()

	waitFor(t, func() bool { return len(reg.Subscribers("DRV001")) == 1 })
	sub.Close()
	<-done

	if st := r.Stats(); st.Subscribers != 0 || st.Watched != 0 {
		t.Errorf("stats = %+v, want empty", st)
	}
}
