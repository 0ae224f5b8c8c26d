package persistence

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"collision-hub/internal/conflict"
	"collision-hub/internal/geometry"
	"collision-hub/internal/models"
	"collision-hub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDB struct {
	mu      sync.Mutex
	agents  map[string]models.AgentRecord
	logs    []models.CommandLog
	batches int
	loadErr error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{agents: make(map[string]models.AgentRecord)}
}

func (m *memoryDB) LoadAgents() ([]models.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.AgentRecord, 0, len(m.agents))
	for _, r := range m.agents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *memoryDB) SaveAgent(r *models.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[r.DeviceID]; !ok {
		m.agents[r.DeviceID] = *r
	}
	return nil
}

func (m *memoryDB) CreateCommandLogs(logs []models.CommandLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *memoryDB) RecentCommandLogs(deviceID string, limit int) ([]models.CommandLog, error) {
	return nil, nil
}

func (m *memoryDB) agentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

func unit() conflict.FootprintTable {
	return conflict.FootprintTable{Default: geometry.Footprint{Length: 1, Width: 0.5}}
}

func TestRegistryPersistsNewAgents(t *testing.T) {
	db := newMemoryDB()
	reg := NewRegistry(db, unit())
	s := store.New(store.WithRegisterHook(reg.OnRegister))

	s.Update(models.Report{DeviceID: "b", Timestamp: 1, Path: []models.Waypoint{{X: 1}}})
	s.Update(models.Report{DeviceID: "a", Timestamp: 1})
	s.Update(models.Report{DeviceID: "b", Timestamp: 2})
	reg.Close()

	require.Equal(t, 2, db.agentCount())
	assert.Equal(t, 0, db.agents["b"].Rank)
	assert.Equal(t, 1, db.agents["a"].Rank)
	assert.JSONEq(t, `[{"x":1,"y":0,"theta":0}]`, db.agents["b"].PathJSON)
	assert.Equal(t, 0.5, db.agents["a"].Width)
}

func TestRegistryRestoresRankOrder(t *testing.T) {
	db := newMemoryDB()
	db.agents["late"] = models.AgentRecord{DeviceID: "late", Rank: 5}
	db.agents["early"] = models.AgentRecord{DeviceID: "early", Rank: 2, PathJSON: `[{"x":3,"y":4,"theta":0}]`}

	reg := NewRegistry(db, unit())
	s := store.New(store.WithRegisterHook(reg.OnRegister))

	n, err := reg.Restore(s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s.Update(models.Report{DeviceID: "newcomer", Timestamp: 1})
	s.Update(models.Report{DeviceID: "early", Timestamp: 1})
	reg.Close()

	assert.Equal(t, []string{"early", "late", "newcomer"}, s.RankedIDs())
	got, err := s.Get("early")
	require.NoError(t, err)
	assert.Equal(t, []models.Waypoint{{X: 3, Y: 4}}, got.Path)

	// Restored agents are not rewritten; the newcomer is appended.
	assert.Equal(t, 3, db.agentCount())
	assert.Equal(t, 5, db.agents["late"].Rank)
	assert.Equal(t, 2, db.agents["newcomer"].Rank)
}

func TestRegistryRestoreError(t *testing.T) {
	db := newMemoryDB()
	db.loadErr = errors.New("relation does not exist")
	reg := NewRegistry(db, unit())
	defer reg.Close()

	_, err := reg.Restore(store.New())
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestAuditWriterBatches(t *testing.T) {
	db := newMemoryDB()
	w := NewAuditWriter(db, 3, time.Hour)

	for i := 0; i < 7; i++ {
		w.RecordCommand(models.CommandLog{ID: string(rune('a' + i)), DeviceID: "x", State: "Stop"})
	}
	w.Close()
	w.RecordCommand(models.CommandLog{ID: "late"})

	assert.Len(t, db.logs, 7)
	assert.Equal(t, 3, db.batches)
}

func TestAuditWriterFlushesOnInterval(t *testing.T) {
	db := newMemoryDB()
	w := NewAuditWriter(db, 100, 5*time.Millisecond)
	defer w.Close()

	w.RecordCommand(models.CommandLog{ID: "1", DeviceID: "x"})

	assert.Eventually(t, func() bool {
		db.mu.Lock()
		defer db.mu.Unlock()
		return len(db.logs) == 1
	}, time.Second, time.Millisecond)
}
