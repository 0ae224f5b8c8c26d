// Package persistence keeps the agent registry and the command audit log
// in Postgres without putting database latency on the tick path.
package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"collision-hub/internal/conflict"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"
	"collision-hub/internal/store"
	"collision-hub/internal/utils"

	"github.com/sourcegraph/conc"
)

// Registry persists registration order so that priority ranks survive a
// hub restart.
type Registry struct {
	db         interfaces.DatabaseService
	footprints conflict.FootprintSource

	mu     sync.Mutex
	known  map[string]bool
	queue  chan models.AgentRecord
	closed bool
	worker conc.WaitGroup
}

func NewRegistry(db interfaces.DatabaseService, footprints conflict.FootprintSource) *Registry {
	r := &Registry{
		db:         db,
		footprints: footprints,
		known:      make(map[string]bool),
		queue:      make(chan models.AgentRecord, 256),
	}
	r.worker.Go(r.run)
	return r
}

// Restore registers every persisted agent in rank order. It must run
// before any report reaches the store.
func (r *Registry) Restore(s *store.PoseStore) (int, error) {
	records, err := r.db.LoadAgents()
	if err != nil {
		return 0, fmt.Errorf("loading agent registry: %w", err)
	}

	r.mu.Lock()
	for _, rec := range records {
		r.known[rec.DeviceID] = true
	}
	r.mu.Unlock()

	for _, rec := range records {
		var path []models.Waypoint
		if rec.PathJSON != "" {
			if err := json.Unmarshal([]byte(rec.PathJSON), &path); err != nil {
				utils.ForDevice(rec.DeviceID).WithError(err).Warn("Ignoring unreadable persisted path")
				path = nil
			}
		}
		s.Register(rec.DeviceID, path)
	}
	return len(records), nil
}

// OnRegister is a store.RegisterFunc. It queues the new agent for saving
// and never blocks.
func (r *Registry) OnRegister(deviceID string, seq int, path []models.Waypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.known[deviceID] {
		return
	}
	r.known[deviceID] = true

	rec := models.AgentRecord{
		DeviceID:     deviceID,
		Rank:         seq,
		RegisteredAt: time.Now(),
	}
	if path != nil {
		if data, err := json.Marshal(path); err == nil {
			rec.PathJSON = string(data)
		}
	}
	if fp, ok := r.footprints.Footprint(deviceID); ok {
		rec.Length = fp.Length
		rec.Width = fp.Width
	}

	select {
	case r.queue <- rec:
	default:
		delete(r.known, deviceID)
		utils.ForDevice(deviceID).Warn("Registry queue full, agent rank not persisted")
	}
}

// Close waits for queued saves to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.worker.Wait()
}

func (r *Registry) run() {
	for rec := range r.queue {
		rec := rec
		if err := r.db.SaveAgent(&rec); err != nil {
			utils.ForDevice(rec.DeviceID).WithError(err).Error("Failed to persist agent registration")
		}
	}
}
