// Package store holds the hub's latest view of every agent.
package store

import (
	"errors"
	"sort"
	"sync"

	"collision-hub/internal/metrics"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"
)

// ErrNotFound is returned for an agent the hub has no pose for.
var ErrNotFound = errors.New("agent not found")

// RegisterFunc observes a newly registered agent. seq is its registration
// sequence number and never changes.
type RegisterFunc func(deviceID string, seq int, path []models.Waypoint)

type entry struct {
	state    models.AgentState
	seq      int
	reported bool
	pathSet  bool
}

// PoseStore is safe for concurrent use. Writers are the ingestion paths
// and the tick; readers get deep copies and never observe a partial update.
type PoseStore struct {
	mu      sync.RWMutex
	agents  map[string]*entry
	nextSeq int

	metrics    *metrics.Recorder
	onRegister RegisterFunc
}

// Option configures a PoseStore.
type Option func(*PoseStore)

// WithMetrics counts report outcomes on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *PoseStore) { s.metrics = rec }
}

// WithRegisterHook calls fn after every new registration, outside the lock.
func WithRegisterHook(fn RegisterFunc) Option {
	return func(s *PoseStore) { s.onRegister = fn }
}

func New(opts ...Option) *PoseStore {
	s := &PoseStore{agents: make(map[string]*entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update applies a validated report. It reports whether the report was
// applied; a report no newer than the stored one is dropped.
//
// The first report of an unknown agent registers it. The hub owns the
// state field, so a new agent starts in Stop and later reports never
// touch it.
func (s *PoseStore) Update(r models.Report) bool {
	s.mu.Lock()

	e, known := s.agents[r.DeviceID]
	if known && e.reported && r.Timestamp <= e.state.Timestamp {
		stored := e.state.Timestamp
		s.mu.Unlock()

		utils.ForDevice(r.DeviceID).
			WithField("timestamp", r.Timestamp).
			WithField("stored_timestamp", stored).
			Debug("Dropping stale report")
		s.metrics.IncReport(metrics.ReportStale)
		return false
	}

	registered := false
	if !known {
		e = &entry{seq: s.nextSeq, state: models.AgentState{
			DeviceID: r.DeviceID,
			State:    models.MotionStop,
		}}
		s.nextSeq++
		s.agents[r.DeviceID] = e
		registered = true
	}

	// A report without a path leaves an unset path open for a later one.
	pathChanged := false
	if r.Path != nil {
		if !e.pathSet {
			e.state.Path = copyPath(r.Path)
			e.pathSet = true
		} else if !samePath(e.state.Path, r.Path) {
			pathChanged = true
		}
	}

	e.state.X = r.X
	e.state.Y = r.Y
	e.state.Theta = models.NormalizeTheta(r.Theta)
	e.state.Loaded = r.Loaded
	e.state.Timestamp = r.Timestamp
	e.state.BatteryLevel = r.BatteryLevel
	e.reported = true

	seq := e.seq
	path := copyPath(e.state.Path)
	s.mu.Unlock()

	if pathChanged {
		utils.ForDevice(r.DeviceID).Debug("Ignoring path change; path is fixed at registration")
	}
	if registered {
		utils.ForDevice(r.DeviceID).WithField("seq", seq).Info("Agent registered")
		if s.onRegister != nil {
			s.onRegister(r.DeviceID, seq, path)
		}
	}
	s.metrics.IncReport(metrics.ReportApplied)
	return true
}

// Register adds an agent ahead of its first report, e.g. from the fleet
// manifest or the persisted registry. It returns the agent's sequence
// number and whether this call created it. A nil path leaves the path to
// be fixed by the first report.
func (s *PoseStore) Register(deviceID string, path []models.Waypoint) (int, bool) {
	s.mu.Lock()
	if e, ok := s.agents[deviceID]; ok {
		s.mu.Unlock()
		return e.seq, false
	}
	e := &entry{seq: s.nextSeq, state: models.AgentState{
		DeviceID: deviceID,
		State:    models.MotionStop,
	}}
	if path != nil {
		e.state.Path = copyPath(path)
		e.pathSet = true
	}
	s.nextSeq++
	s.agents[deviceID] = e
	seq := e.seq
	s.mu.Unlock()

	if s.onRegister != nil {
		s.onRegister(deviceID, seq, copyPath(path))
	}
	return seq, true
}

// Snapshot returns deep copies of every agent that has reported at least
// once, sorted by device id.
func (s *PoseStore) Snapshot() []models.AgentState {
	s.mu.RLock()
	out := make([]models.AgentState, 0, len(s.agents))
	for _, e := range s.agents {
		if e.reported {
			out = append(out, e.state.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Get returns a copy of one agent's state.
func (s *PoseStore) Get(deviceID string) (models.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.agents[deviceID]
	if !ok || !e.reported {
		return models.AgentState{}, ErrNotFound
	}
	return e.state.Clone(), nil
}

// ApplyAssignment records the hub's decisions. Ids the store does not
// know are ignored.
func (s *PoseStore) ApplyAssignment(a map[string]models.MotionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, state := range a {
		if e, ok := s.agents[id]; ok {
			e.state.State = state
		}
	}
}

// RankedIDs lists every registered agent by registration sequence.
func (s *PoseStore) RankedIDs() []string {
	s.mu.RLock()
	type ranked struct {
		id  string
		seq int
	}
	all := make([]ranked, 0, len(s.agents))
	for id, e := range s.agents {
		all = append(all, ranked{id, e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]string, len(all))
	for i, r := range all {
		out[i] = r.id
	}
	return out
}

// Count returns registered agents and how many of them have reported.
func (s *PoseStore) Count() (registered, reported int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.agents {
		if e.reported {
			reported++
		}
	}
	return len(s.agents), reported
}

func copyPath(p []models.Waypoint) []models.Waypoint {
	if p == nil {
		return nil
	}
	out := make([]models.Waypoint, len(p))
	copy(out, p)
	return out
}

func samePath(a, b []models.Waypoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
