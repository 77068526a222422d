package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/pkg/validator"
)

// ValidationError explains why a location payload was refused. It unwraps to
// types.ErrMalformedPayload or types.ErrMissingCoordinates.
type ValidationError struct {
	Reason error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Fields)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Validate turns a raw driver payload into a LocationEvent for identity.
//
// latitude and longitude must be finite JSON numbers. speed and heading fall back
// to 0 when absent, null, falsy or not numeric. accuracy is kept only when it is
// a number. Any client timestamp is ignored: the event is stamped with now.
func Validate(identity string, raw []byte, now time.Time) (models.LocationEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return models.LocationEvent{}, &ValidationError{Reason: types.ErrMalformedPayload}
	}
	// exactly one JSON value per frame
	if _, err := dec.Token(); err != io.EOF {
		return models.LocationEvent{}, &ValidationError{Reason: types.ErrMalformedPayload}
	}

	latitude, latOK := finiteNumber(body["latitude"])
	longitude, lonOK := finiteNumber(body["longitude"])

	v := validator.New()
	v.Check(latOK, "latitude", "must be a finite number")
	v.Check(lonOK, "longitude", "must be a finite number")
	if !v.Valid() {
		return models.LocationEvent{}, &ValidationError{
			Reason: types.ErrMissingCoordinates,
			Fields: v.Errors,
		}
	}

	var accuracy *float64
	if a, ok := finiteNumber(body["accuracy"]); ok {
		accuracy = &a
	}

	return models.NewLocationEvent(
		identity,
		latitude,
		longitude,
		numberOrZero(body["speed"]),
		numberOrZero(body["heading"]),
		accuracy,
		now,
	), nil
}

func finiteNumber(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOrZero(v any) float64 {
	f, _ := finiteNumber(v)
	return f
}
