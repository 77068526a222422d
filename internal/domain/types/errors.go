package types

import "errors"

var (
	// validation
	ErrMissingCoordinates = errors.New("latitude and longitude must be finite numbers")
	ErrMalformedPayload   = errors.New("payload is not a JSON object")

	// connections
	ErrUnroutable             = errors.New("path does not name a driver or subscriber route")
	ErrDriverAlreadyConnected = errors.New("driver identity already has an open connection")
	ErrEmptyIdentity          = errors.New("driver identity is empty")

	// last known location
	ErrLocationNotFound = errors.New("no known location for driver")
)
