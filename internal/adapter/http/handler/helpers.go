package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"

	t "github.com/Temutjin2k/location-relay/internal/domain/types"
)

type envelope map[string]any

const maxBodyBytes = 1_048_576

func writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return errors.New("failed to encode json")
	}

	js = append(js, '\n')

	maps.Copy(w.Header(), headers)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)

	return nil
}

// readBody returns the raw request body, limited to 1MB. Payload validation is
// left to the caller.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return nil, fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("body must not be empty")
	}
	return body, nil
}

func GetCode(err error) int {
	switch {
	case IsOneOf(err, t.ErrMalformedPayload, t.ErrEmptyIdentity):
		return http.StatusBadRequest
	case IsOneOf(err, t.ErrMissingCoordinates):
		return http.StatusUnprocessableEntity
	case IsOneOf(err, t.ErrLocationNotFound, t.ErrUnroutable):
		return http.StatusNotFound
	case IsOneOf(err, t.ErrDriverAlreadyConnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func IsOneOf(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
