package types

// MessageType is the "type" field of server-originated control messages.
type MessageType string

func (t MessageType) String() string {
	return string(t)
}

const (
	MessageConnected MessageType = "connected"
)
