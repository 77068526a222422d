package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Temutjin2k/location-relay/internal/adapter/memory"
	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	srv   *httptest.Server
	relay *relay.Relay
}

func newTestEnv(t *testing.T, policy types.DuplicatePolicy) *testEnv {
	t.Helper()
	l := logger.Discard()

	registry := relay.NewRegistry(policy, l)
	store := memory.NewLocationStore()
	r := relay.New(registry, relay.NewRouter(registry, l), l, relay.WithSink("memory", store.Save))

	api := New("127.0.0.1:0", r, store, ws.DefaultOptions(), l)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		r.Shutdown()
		srv.Close()
	})

	return &testEnv{srv: srv, relay: r}
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", path, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *testEnv) waitStats(t *testing.T, cond func(relay.RegistryStats) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond(e.relay.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("stats never matched, last %+v", e.relay.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readJSONMessage(t *testing.T, conn *websocket.Conn, dst any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(dst); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestRelay_SubscriberReceivesDriverLocation(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	sub := env.dial(t, "/track/DRV001")
	var confirm models.ConnectedMessage
	readJSONMessage(t, sub, &confirm)
	if confirm.Type != types.MessageConnected || confirm.DriverIdentity != "DRV001" {
		t.Fatalf("confirmation = %+v", confirm)
	}

	other := env.dial(t, "/track/DRV002")
	readJSONMessage(t, other, &models.ConnectedMessage{})

	drv := env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 && s.Subscribers == 2 })

	if err := drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":23.8103,"longitude":90.4125,"accuracy":3}`)); err != nil {
		t.Fatalf("driver write: %v", err)
	}

	var event models.LocationEvent
	readJSONMessage(t, sub, &event)
	if event.DriverIdentity != "DRV001" || event.Latitude != 23.8103 || event.Longitude != 90.4125 {
		t.Errorf("event = %+v", event)
	}
	if event.Speed != 0 || event.Heading != 0 {
		t.Errorf("speed, heading = %v, %v; want defaults", event.Speed, event.Heading)
	}
	if event.Accuracy == nil || *event.Accuracy != 3 {
		t.Errorf("accuracy = %v, want 3", event.Accuracy)
	}
	if time.Since(event.Timestamp) > time.Minute {
		t.Errorf("timestamp = %v, want server time", event.Timestamp)
	}

	// a subscriber of another driver gets nothing
	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("subscriber of DRV002 received a message")
	}
}

func TestRelay_SubscribersGetIdenticalCopies(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	subA := env.dial(t, "/track/DRV002")
	readJSONMessage(t, subA, &models.ConnectedMessage{})
	subB := env.dial(t, "/track/DRV002")
	readJSONMessage(t, subB, &models.ConnectedMessage{})

	drv := env.dial(t, "/driver/DRV002")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 && s.Subscribers == 2 })

	if err := drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":1.5,"longitude":2.5,"speed":40}`)); err != nil {
		t.Fatalf("driver write: %v", err)
	}

	frames := make([][]byte, 0, 2)
	for _, sub := range []*websocket.Conn{subA, subB} {
		_ = sub.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := sub.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		frames = append(frames, msg)
	}

	if !bytes.Equal(frames[0], frames[1]) {
		t.Fatalf("frames differ:\n%s\n%s", frames[0], frames[1])
	}
	var event models.LocationEvent
	if err := json.Unmarshal(frames[0], &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.DriverIdentity != "DRV002" || event.Latitude != 1.5 || event.Speed != 40 {
		t.Errorf("event = %+v", event)
	}
}

func TestRelay_SubscriberLeavesWithoutBacklog(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	sub := env.dial(t, "/track/DRV001")
	readJSONMessage(t, sub, &models.ConnectedMessage{})
	drv := env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 && s.Subscribers == 1 })

	sub.Close()
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Subscribers == 0 })

	// publishing with nobody listening keeps the driver connected
	if err := drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":1,"longitude":2}`)); err != nil {
		t.Fatalf("driver write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if st := env.relay.Stats(); st.Drivers != 1 {
		t.Fatalf("drivers = %d, want 1", st.Drivers)
	}

	late := env.dial(t, "/track/DRV001")
	var confirm models.ConnectedMessage
	readJSONMessage(t, late, &confirm)
	if confirm.Type != types.MessageConnected {
		t.Fatalf("first message = %+v, want connected", confirm)
	}

	_ = late.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := late.ReadMessage(); err == nil {
		t.Fatalf("late subscriber got replayed message %s", msg)
	}

	// the same driver connection still delivers new events
	late2 := env.dial(t, "/track/DRV001")
	readJSONMessage(t, late2, &models.ConnectedMessage{})
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Subscribers == 2 })
	if err := drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":3,"longitude":4}`)); err != nil {
		t.Fatalf("driver write: %v", err)
	}
	var event models.LocationEvent
	readJSONMessage(t, late2, &event)
	if event.Latitude != 3 {
		t.Errorf("event = %+v, want latitude 3", event)
	}
}

func TestRelay_InvalidDriverMessageIsDropped(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	sub := env.dial(t, "/subscriber/DRV001")
	readJSONMessage(t, sub, &models.ConnectedMessage{})

	drv := env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 && s.Subscribers == 1 })

	_ = drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":23.8103}`))
	_ = drv.WriteMessage(websocket.TextMessage, []byte(`not json`))
	_ = drv.WriteMessage(websocket.TextMessage, []byte(`{"latitude":1,"longitude":2}`))

	// the first message the subscriber sees is the valid one
	var event models.LocationEvent
	readJSONMessage(t, sub, &event)
	if event.Latitude != 1 || event.Longitude != 2 {
		t.Errorf("event = %+v, want the valid location", event)
	}
}

func TestRelay_UnroutablePath(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	for _, path := range []string{"/admin/DRV001", "/driver/", "/driver/DRV001/extra", "/"} {
		url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + path
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if !errors.Is(err, websocket.ErrBadHandshake) {
			t.Errorf("%s: err = %v, want bad handshake", path, err)
			continue
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}

	if st := env.relay.Stats(); st != (relay.RegistryStats{}) {
		t.Errorf("stats = %+v, want empty", st)
	}
}

func TestRelay_DriverReplaced(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	sub := env.dial(t, "/track/DRV001")
	readJSONMessage(t, sub, &models.ConnectedMessage{})

	first := env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 })
	second := env.dial(t, "/driver/DRV001")
	time.Sleep(50 * time.Millisecond)

	first.Close()
	time.Sleep(50 * time.Millisecond)

	if st := env.relay.Stats(); st.Drivers != 1 {
		t.Fatalf("drivers = %d, want 1 after the replaced connection closed", st.Drivers)
	}

	_ = second.WriteMessage(websocket.TextMessage, []byte(`{"latitude":5,"longitude":6}`))
	var event models.LocationEvent
	readJSONMessage(t, sub, &event)
	if event.Latitude != 5 {
		t.Errorf("event = %+v", event)
	}
}

func TestRelay_RejectDuplicateDriver(t *testing.T) {
	env := newTestEnv(t, types.PolicyRejectDuplicate)

	_ = env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 })

	second := env.dial(t, "/driver/DRV001")
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("err = %v, want close %d", err, websocket.ClosePolicyViolation)
	}
}

func TestLocation_HTTPFallback(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)

	sub := env.dial(t, "/track/DRV007")
	readJSONMessage(t, sub, &models.ConnectedMessage{})
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Subscribers == 1 })

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(env.srv.URL+"/api/drivers/DRV007/location", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := post(`{"latitude":1.5,"longitude":2.5,"speed":40}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if resp := post(`{"latitude":1.5}`); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("missing coordinates status = %d, want 422", resp.StatusCode)
	}
	if resp := post(`{oops`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed status = %d, want 400", resp.StatusCode)
	}

	var event models.LocationEvent
	readJSONMessage(t, sub, &event)
	if event.Speed != 40 || event.DriverIdentity != "DRV007" {
		t.Errorf("relayed event = %+v", event)
	}

	resp, err := http.Get(env.srv.URL + "/api/drivers/DRV007/location")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var last models.LocationEvent
	if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if last.Latitude != 1.5 || last.Longitude != 2.5 {
		t.Errorf("last = %+v", last)
	}

	missing, err := http.Get(env.srv.URL + "/api/drivers/NOPE/location")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown driver status = %d, want 404", missing.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)
	_ = env.dial(t, "/driver/DRV001")
	env.waitStats(t, func(s relay.RegistryStats) bool { return s.Drivers == 1 })

	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if id := resp.Header.Get("X-Request-ID"); id == "" {
		t.Error("missing X-Request-ID header")
	}

	var body struct {
		Status      string              `json:"status"`
		Connections relay.RegistryStats `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "available" || body.Connections.Drivers != 1 {
		t.Errorf("health = %+v", body)
	}
}

func TestServer_RunFailsOnBusyPort(t *testing.T) {
	env := newTestEnv(t, types.PolicyReplaceLatest)
	addr := strings.TrimPrefix(env.srv.URL, "http://")

	api := New(addr, env.relay, memory.NewLocationStore(), ws.DefaultOptions(), logger.Discard())
	if err := api.Run(context.Background()); err == nil {
		t.Fatal("Run on a busy port returned nil")
	}
}
