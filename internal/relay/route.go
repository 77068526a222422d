package relay

import (
	"strings"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
)

// Route is the parsed form of a websocket request path. Role is empty for
// unroutable paths.
type Route struct {
	Role     types.Role
	Identity string
}

func (r Route) Routable() bool {
	return r.Role != "" && r.Identity != ""
}

// Path prefixes accepted for each role.
const (
	PrefixDriver     = "driver"
	PrefixTrack      = "track"
	PrefixSubscriber = "subscriber"
)

var routePrefixes = map[string]types.Role{
	PrefixDriver:     types.RoleDriver,
	PrefixTrack:      types.RoleSubscriber,
	PrefixSubscriber: types.RoleSubscriber,
}

// ParseRoute maps "/driver/{id}" to a driver route and "/track/{id}" (or
// "/subscriber/{id}") to a subscriber route. Anything else is unroutable.
func ParseRoute(path string) Route {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 2 || segments[1] == "" {
		return Route{}
	}

	role, ok := routePrefixes[segments[0]]
	if !ok {
		return Route{}
	}
	return Route{Role: role, Identity: segments[1]}
}

// NewRoute builds a route from an already extracted role prefix and identity.
func NewRoute(prefix, identity string) Route {
	role, ok := routePrefixes[prefix]
	if !ok || identity == "" || strings.Contains(identity, "/") {
		return Route{}
	}
	return Route{Role: role, Identity: identity}
}
