package models

import (
	"time"
)

// LocationEvent is one normalized position of a driver, stamped by the server.
// It is built once by the validator (or a feed) and only read afterwards.
type LocationEvent struct {
	DriverIdentity string    `json:"driverIdentity"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Timestamp      time.Time `json:"timestamp"`
	Speed          float64   `json:"speed"`
	Heading        float64   `json:"heading"`
	Accuracy       *float64  `json:"accuracy,omitempty"`
}

// NewLocationEvent builds an event stamped with now in UTC.
func NewLocationEvent(identity string, latitude, longitude, speed, heading float64, accuracy *float64, now time.Time) LocationEvent {
	if accuracy != nil {
		a := *accuracy
		accuracy = &a
	}
	return LocationEvent{
		DriverIdentity: identity,
		Latitude:       latitude,
		Longitude:      longitude,
		Timestamp:      now.UTC(),
		Speed:          speed,
		Heading:        heading,
		Accuracy:       accuracy,
	}
}

// LocationUpdate is what a driver sends. Only latitude and longitude are
// required; the relay stamps the time itself.
type LocationUpdate struct {
	Latitude  float64  `json:"latitude" example:"23.8103"`
	Longitude float64  `json:"longitude" example:"90.4125"`
	Speed     *float64 `json:"speed,omitempty" example:"12.5"`
	Heading   *float64 `json:"heading,omitempty" example:"180"`
	Accuracy  *float64 `json:"accuracy,omitempty" example:"5"`
}
