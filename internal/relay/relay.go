package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/metrics"
	"github.com/gorilla/websocket"
)

type (
	// Fanout delivers one event to the subscribers of its driver.
	Fanout interface {
		Publish(ctx context.Context, event models.LocationEvent) Delivery
	}

	// Session is a connection whose lifecycle the relay drives.
	Session interface {
		Conn
		Open()
		SendJSON(v any) error
		Listen(ctx context.Context, handle func(msg []byte)) error
		CloseWithReason(code int, reason string)
	}

	// SinkFunc receives every published event after fan-out, e.g. to keep the
	// last known location or mirror events to a broker.
	SinkFunc func(ctx context.Context, event models.LocationEvent) error

	sink struct {
		name string
		fn   SinkFunc
	}
)

type Option func(*Relay)

// WithSink registers a sink. A failing sink is logged and never affects delivery.
func WithSink(name string, fn SinkFunc) Option {
	return func(r *Relay) {
		r.sinks = append(r.sinks, sink{name: name, fn: fn})
	}
}

// WithSinkTimeout bounds each sink call.
func WithSinkTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.sinkTimeout = d
		}
	}
}

// WithClock replaces time.Now for event stamping.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// Relay drives connection lifecycles: it registers sessions by route, feeds
// driver messages through validation into the fan-out, and cleans the registry
// up when a session ends.
type Relay struct {
	registry *Registry
	fanout   Fanout

	sinks       []sink
	sinkTimeout time.Duration
	now         func() time.Time

	l logger.Logger
}

func New(registry *Registry, fanout Fanout, l logger.Logger, opts ...Option) *Relay {
	r := &Relay{
		registry:    registry,
		fanout:      fanout,
		sinkTimeout: 2 * time.Second,
		now:         time.Now,
		l:           l,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Serve runs the session until it closes. It returns types.ErrUnroutable for a
// route without role, the registration error when a driver is refused, or the
// transport error that ended the session.
func (r *Relay) Serve(ctx context.Context, route Route, s Session) error {
	const op = "Relay.Serve"
	ctx = wrap.WithConnID(ctx, s.ID())

	if !route.Routable() {
		s.CloseWithReason(websocket.ClosePolicyViolation, "unroutable path")
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, types.ErrUnroutable))
	}

	ctx = wrap.WithDriverID(ctx, route.Identity)
	s.Open()

	var err error
	switch route.Role {
	case types.RoleDriver:
		err = r.serveDriver(ctx, route.Identity, s)
	case types.RoleSubscriber:
		err = r.serveSubscriber(ctx, route.Identity, s)
	}

	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (r *Relay) serveDriver(ctx context.Context, identity string, s Session) error {
	if err := r.registry.RegisterDriver(identity, s); err != nil {
		s.CloseWithReason(websocket.ClosePolicyViolation, err.Error())
		r.l.Warn(wrap.WithAction(ctx, types.ActionDriverConnected), "driver connection refused", "reason", err.Error())
		return err
	}
	r.l.Info(wrap.WithAction(ctx, types.ActionDriverConnected), "driver connected")

	defer func() {
		_ = s.Close()
		removed := r.registry.UnregisterDriver(identity, s)
		r.l.Info(wrap.WithAction(ctx, types.ActionDriverDisconnected), "driver disconnected", "unregistered", removed)
	}()

	return s.Listen(ctx, func(msg []byte) {
		_, _ = r.Ingest(ctx, types.SourceWebSocket, identity, msg)
	})
}

func (r *Relay) serveSubscriber(ctx context.Context, identity string, s Session) error {
	// queued before registration so it always precedes the first location
	if err := s.SendJSON(models.NewConnectedMessage(identity)); err != nil {
		_ = s.Close()
		return fmt.Errorf("send confirmation: %w", err)
	}

	if err := r.registry.RegisterSubscriber(identity, s); err != nil {
		_ = s.Close()
		return err
	}
	r.l.Info(wrap.WithAction(ctx, types.ActionSubscriberConnected), "subscriber connected")

	defer func() {
		_ = s.Close()
		r.registry.UnregisterSubscriber(identity, s)
		r.l.Info(wrap.WithAction(ctx, types.ActionSubscriberLeft), "subscriber disconnected")
	}()

	return s.Listen(ctx, func(msg []byte) {
		r.l.Debug(ctx, "ignoring message from subscriber", "size", len(msg))
	})
}

// Ingest validates a raw driver message and publishes it. An invalid message is
// never published and its *ValidationError is returned.
func (r *Relay) Ingest(ctx context.Context, source types.EventSource, identity string, raw []byte) (models.LocationEvent, error) {
	ctx = wrap.WithAction(ctx, types.ActionIngestLocation)

	event, err := Validate(identity, raw, r.now())
	if err != nil {
		reason := "missing_coordinates"
		if errors.Is(err, types.ErrMalformedPayload) {
			reason = "malformed_payload"
		}
		metrics.RelayMessagesRejected.WithLabelValues(reason).Inc()
		r.l.Debug(ctx, "dropping invalid driver message", "reason", err.Error())
		return models.LocationEvent{}, err
	}

	r.Publish(ctx, source, event)
	return event, nil
}

// Publish fans event out to its subscribers and then hands it to every sink.
func (r *Relay) Publish(ctx context.Context, source types.EventSource, event models.LocationEvent) Delivery {
	metrics.RelayEventsPublished.WithLabelValues(string(source)).Inc()

	d := r.fanout.Publish(ctx, event)
	r.runSinks(ctx, event)

	return d
}

func (r *Relay) runSinks(ctx context.Context, event models.LocationEvent) {
	for _, s := range r.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sinkTimeout)
		err := s.fn(sctx, event)
		cancel()

		if err != nil {
			metrics.RelaySinkErrors.WithLabelValues(s.name).Inc()
			ctx := wrap.WithAction(ctx, types.ActionSinkFailed)
			r.l.Error(wrap.ErrorCtx(ctx, err), "location sink failed", err, "sink", s.name)
		}
	}
}

// Stats exposes registry counts.
func (r *Relay) Stats() RegistryStats {
	return r.registry.Stats()
}

// Shutdown closes every registered connection.
func (r *Relay) Shutdown() {
	r.registry.Close()
}
