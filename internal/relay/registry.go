package relay

import (
	"context"
	"sync"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	"github.com/Temutjin2k/location-relay/pkg/metrics"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
)

// Conn is what the registry and router need from a live connection.
type Conn interface {
	ID() string
	State() ws.State
	Send(msg []byte) error
	Close() error
}

// RegistryStats is a point-in-time count of registered connections.
type RegistryStats struct {
	Drivers     int `json:"drivers"`
	Subscribers int `json:"subscribers"`
	Watched     int `json:"watched_identities"`
}

// Registry tracks who is connected as what: at most one driver connection per
// identity, and a set of subscriber connections per identity. A subscriber
// belongs to exactly one set.
type Registry struct {
	policy types.DuplicatePolicy
	l      logger.Logger

	mu          sync.RWMutex
	drivers     map[string]Conn
	subscribers map[string]map[string]Conn // identity -> conn id -> conn
	watching    map[string]string          // subscriber conn id -> identity
}

func NewRegistry(policy types.DuplicatePolicy, l logger.Logger) *Registry {
	if !policy.Valid() {
		policy = types.PolicyReplaceLatest
	}
	return &Registry{
		policy:      policy,
		l:           l,
		drivers:     make(map[string]Conn),
		subscribers: make(map[string]map[string]Conn),
		watching:    make(map[string]string),
	}
}

// RegisterDriver makes conn the driver connection of identity. With the
// replace-latest policy a previous connection is replaced without notice; with
// reject-duplicate an open previous connection wins and ErrDriverAlreadyConnected
// is returned.
func (r *Registry) RegisterDriver(identity string, conn Conn) error {
	if identity == "" {
		return types.ErrEmptyIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := wrap.WithDriverID(wrap.WithAction(context.Background(), "register_driver"), identity)

	existing, ok := r.drivers[identity]
	if ok && existing.ID() != conn.ID() {
		if r.policy == types.PolicyRejectDuplicate && existing.State() == ws.StateOpen {
			return types.ErrDriverAlreadyConnected
		}
		r.l.Warn(ctx, "replacing existing driver connection",
			"old_conn_id", existing.ID(),
			"new_conn_id", conn.ID(),
		)
	}

	if !ok {
		metrics.RelayConnections.WithLabelValues(types.RoleDriver.String()).Inc()
	}
	r.drivers[identity] = conn

	return nil
}

// UnregisterDriver removes the driver entry only if it still holds conn, so a
// late close of a replaced connection cannot evict its successor.
func (r *Registry) UnregisterDriver(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.drivers[identity]
	if !ok || existing.ID() != conn.ID() {
		return false
	}

	delete(r.drivers, identity)
	metrics.RelayConnections.WithLabelValues(types.RoleDriver.String()).Dec()
	return true
}

// RegisterSubscriber adds conn to the subscription set of identity. A conn that
// was watching another identity is moved.
func (r *Registry) RegisterSubscriber(identity string, conn Conn) error {
	if identity == "" {
		return types.ErrEmptyIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.watching[conn.ID()]; ok {
		if previous == identity {
			return nil
		}
		r.removeSubscriberLocked(previous, conn.ID())
	}

	set, ok := r.subscribers[identity]
	if !ok {
		set = make(map[string]Conn)
		r.subscribers[identity] = set
	}
	set[conn.ID()] = conn
	r.watching[conn.ID()] = identity
	metrics.RelayConnections.WithLabelValues(types.RoleSubscriber.String()).Inc()

	return nil
}

// UnregisterSubscriber removes conn from the set of identity and drops the set
// once it is empty.
func (r *Registry) UnregisterSubscriber(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeSubscriberLocked(identity, conn.ID())
}

func (r *Registry) removeSubscriberLocked(identity, connID string) bool {
	set, ok := r.subscribers[identity]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}

	delete(set, connID)
	delete(r.watching, connID)
	if len(set) == 0 {
		delete(r.subscribers, identity)
	}
	metrics.RelayConnections.WithLabelValues(types.RoleSubscriber.String()).Dec()

	return true
}

// Subscribers returns a snapshot of the subscribers of identity. The slice is
// owned by the caller and empty when nobody watches identity.
func (r *Registry) Subscribers(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subscribers[identity]
	if len(set) == 0 {
		return nil
	}

	out := make([]Conn, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Driver returns the registered driver connection of identity.
func (r *Registry) Driver(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.drivers[identity]
	return conn, ok
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Drivers:     len(r.drivers),
		Subscribers: len(r.watching),
		Watched:     len(r.subscribers),
	}
}

// Close closes every registered connection. Entries are removed by the
// sessions themselves once their read loops return.
func (r *Registry) Close() {
	ctx := wrap.WithAction(context.Background(), "registry_close")

	// copy under the lock, close outside of it
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.drivers)+len(r.watching))
	for _, conn := range r.drivers {
		conns = append(conns, conn)
	}
	for _, set := range r.subscribers {
		for _, conn := range set {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			r.l.Warn(ctx, "failed to close conn", "conn_id", conn.ID(), "err", err.Error())
		}
	}

	r.l.Info(ctx, "all relay connections closed", "count", len(conns))
}
