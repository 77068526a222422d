package types

// Role of a relay connection.
type Role string

const (
	RoleDriver     Role = "driver"
	RoleSubscriber Role = "subscriber"
)

func (r Role) String() string {
	return string(r)
}

// DuplicatePolicy decides what happens when a second driver connection
// registers under an identity that already has one.
type DuplicatePolicy string

const (
	// PolicyReplaceLatest silently replaces the previous connection.
	PolicyReplaceLatest DuplicatePolicy = "replace-latest"
	// PolicyRejectDuplicate refuses the newcomer while the previous one is open.
	PolicyRejectDuplicate DuplicatePolicy = "reject-duplicate"
)

func (p DuplicatePolicy) Valid() bool {
	return p == PolicyReplaceLatest || p == PolicyRejectDuplicate
}

// EventSource labels where a location event entered the relay.
type EventSource string

const (
	SourceWebSocket  EventSource = "websocket"
	SourceHTTP       EventSource = "http"
	SourceSimulation EventSource = "simulation"
)
