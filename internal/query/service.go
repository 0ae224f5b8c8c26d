// Package query exposes the hub's view of the fleet over REST.
package query

import (
	"errors"

	"collision-hub/internal/apperr"
	"collision-hub/internal/models"
	"collision-hub/internal/store"
)

// Service answers read-only questions about the fleet.
type Service struct {
	store *store.PoseStore
}

func NewService(s *store.PoseStore) *Service {
	return &Service{store: s}
}

// GetState returns a copy of one agent's state. An unknown agent yields
// store.ErrNotFound wrapped in a 2102 error.
func (s *Service) GetState(deviceID string) (models.AgentState, error) {
	if deviceID == "" {
		return models.AgentState{}, apperr.NewIncorrectInput("device_id is required")
	}
	state, err := s.store.Get(deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return models.AgentState{}, apperr.NewIncorrectDBRecord("No state recorded for device "+deviceID, err)
	}
	return state, err
}

// ListStates returns every agent that has reported, sorted by device id.
func (s *Service) ListStates() []models.AgentState {
	return s.store.Snapshot()
}
