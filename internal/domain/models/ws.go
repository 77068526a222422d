package models

import (
	"fmt"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
)

// ConnectedMessage confirms a subscription right after a subscriber connects.
type ConnectedMessage struct {
	Type           types.MessageType `json:"type"`
	DriverIdentity string            `json:"driverIdentity"`
	Message        string            `json:"message"`
}

func NewConnectedMessage(identity string) ConnectedMessage {
	return ConnectedMessage{
		Type:           types.MessageConnected,
		DriverIdentity: identity,
		Message:        fmt.Sprintf("subscribed to location updates of driver %s", identity),
	}
}
