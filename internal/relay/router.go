package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/metrics"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
)

// SubscriberSource resolves the current subscribers of an identity.
type SubscriberSource interface {
	Subscribers(identity string) []Conn
}

// Delivery counts what happened to one event across its subscribers.
type Delivery struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"` // subscriber not open
	Dropped   int `json:"dropped"` // send queue full or write refused
}

// Router fans a location event out to the subscribers of its driver.
// Delivery is at most once: no retries and no buffering beyond each
// connection's own send queue.
type Router struct {
	subscribers SubscriberSource
	l           logger.Logger

	// serializes fan-out so every subscriber queue sees events in publish order
	mu sync.Mutex
}

func NewRouter(subscribers SubscriberSource, l logger.Logger) *Router {
	return &Router{
		subscribers: subscribers,
		l:           l,
	}
}

// Publish writes event to every open subscriber of event.DriverIdentity.
// Subscribers that are not open are skipped; they are unregistered by their own
// session when it ends, never here.
func (r *Router) Publish(ctx context.Context, event models.LocationEvent) Delivery {
	const op = "Router.Publish"
	ctx = wrap.WithDriverID(wrap.WithAction(ctx, types.ActionPublishLocation), event.DriverIdentity)

	r.mu.Lock()
	defer r.mu.Unlock()

	var d Delivery

	subs := r.subscribers.Subscribers(event.DriverIdentity)
	if len(subs) == 0 {
		return d
	}

	payload, err := json.Marshal(event)
	if err != nil {
		err = wrap.Error(ctx, fmt.Errorf("%s: marshal event: %w", op, err))
		r.l.Error(wrap.ErrorCtx(ctx, err), "failed to encode location event", err)
		return d
	}

	for _, conn := range subs {
		if conn.State() != ws.StateOpen {
			d.Skipped++
			continue
		}

		switch err := conn.Send(payload); {
		case err == nil:
			d.Delivered++
		case errors.Is(err, ws.ErrConnClosed), errors.Is(err, ws.ErrNotOpen):
			d.Skipped++
		default:
			d.Dropped++
			r.l.Debug(ctx, "dropped location for subscriber", "conn_id", conn.ID(), "reason", err.Error())
		}
	}

	metrics.RecordDeliveries(d.Delivered, d.Skipped, d.Dropped)

	return d
}
