package memory

import (
	"context"
	"sync"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
)

// LocationStore keeps the last known location of every driver in process
// memory. It is lost on restart.
type LocationStore struct {
	mu   sync.RWMutex
	last map[string]models.LocationEvent
}

func NewLocationStore() *LocationStore {
	return &LocationStore{
		last: make(map[string]models.LocationEvent),
	}
}

// Save stores event unless a newer one is already known for its driver.
func (s *LocationStore) Save(_ context.Context, event models.LocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[event.DriverIdentity]; ok && prev.Timestamp.After(event.Timestamp) {
		return nil
	}
	s.last[event.DriverIdentity] = event
	return nil
}

func (s *LocationStore) Last(_ context.Context, identity string) (models.LocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.last[identity]
	if !ok {
		return models.LocationEvent{}, types.ErrLocationNotFound
	}
	return event, nil
}
