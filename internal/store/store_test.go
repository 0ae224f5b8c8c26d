package store

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"collision-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(id string, ts int64, x, y float64) models.Report {
	return models.Report{DeviceID: id, X: x, Y: y, Timestamp: ts, BatteryLevel: 80}
}

func TestUpdateRegistersNewAgentStopped(t *testing.T) {
	s := New()

	assert.True(t, s.Update(report("robot1", 100, 10, 10)))

	got, err := s.Get("robot1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, int64(100), got.Timestamp)
	assert.Equal(t, models.MotionStop, got.State)
}

func TestUpdateDropsStaleReports(t *testing.T) {
	s := New()
	require.True(t, s.Update(report("robot1", 100, 1, 1)))

	assert.False(t, s.Update(report("robot1", 100, 2, 2)), "equal timestamp")
	assert.False(t, s.Update(report("robot1", 99, 3, 3)), "older timestamp")

	got, _ := s.Get("robot1")
	assert.Equal(t, 1.0, got.X)
	assert.Equal(t, int64(100), got.Timestamp)

	assert.True(t, s.Update(report("robot1", 101, 4, 4)))
	got, _ = s.Get("robot1")
	assert.Equal(t, 4.0, got.X)
}

func TestUpdateNormalizesTheta(t *testing.T) {
	s := New()
	r := report("a", 1, 0, 0)
	r.Theta = 3 * math.Pi
	s.Update(r)

	got, _ := s.Get("a")
	assert.InDelta(t, math.Pi, got.Theta, 1e-12)
}

func TestUpdateKeepsHubOwnedState(t *testing.T) {
	s := New()
	s.Update(report("a", 1, 0, 0))
	s.ApplyAssignment(map[string]models.MotionState{"a": models.MotionResume})

	claimed := "Stop"
	r := report("a", 2, 1, 1)
	r.State = &claimed
	s.Update(r)

	got, _ := s.Get("a")
	assert.Equal(t, models.MotionResume, got.State)
}

func TestPathIsFixedAtRegistration(t *testing.T) {
	s := New()
	first := report("a", 1, 0, 0)
	first.Path = []models.Waypoint{{X: 0, Y: 0}, {X: 5, Y: 0}}
	s.Update(first)

	second := report("a", 2, 1, 0)
	second.Path = []models.Waypoint{{X: 9, Y: 9}}
	s.Update(second)

	got, _ := s.Get("a")
	assert.Equal(t, []models.Waypoint{{X: 0, Y: 0}, {X: 5, Y: 0}}, got.Path)
	assert.Equal(t, 1.0, got.X)
}

func TestPathlessReportDoesNotFixPath(t *testing.T) {
	s := New()
	require.True(t, s.Update(report("a", 1, 0, 0)))

	second := report("a", 2, 1, 0)
	second.Path = []models.Waypoint{{X: 1, Y: 0}, {X: 4, Y: 0}}
	require.True(t, s.Update(second))

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []models.Waypoint{{X: 1, Y: 0}, {X: 4, Y: 0}}, got.Path)
}

func TestSnapshotIsSortedDeepCopy(t *testing.T) {
	s := New()
	r := report("b", 1, 0, 0)
	r.Path = []models.Waypoint{{X: 1}}
	s.Update(r)
	s.Update(report("a", 1, 0, 0))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].DeviceID)
	assert.Equal(t, "b", snap[1].DeviceID)

	snap[1].Path[0].X = 42
	snap[1].X = 42
	got, _ := s.Get("b")
	assert.Equal(t, 1.0, got.Path[0].X)
	assert.Equal(t, 0.0, got.X)
}

func TestGetUnknownAgent(t *testing.T) {
	s := New()
	_, err := s.Get("unknownbot")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterAheadOfFirstReport(t *testing.T) {
	var hooked []string
	s := New(WithRegisterHook(func(id string, seq int, _ []models.Waypoint) {
		hooked = append(hooked, fmt.Sprintf("%s:%d", id, seq))
	}))

	seq, created := s.Register("late", []models.Waypoint{{X: 3}})
	assert.Equal(t, 0, seq)
	assert.True(t, created)
	_, created = s.Register("late", nil)
	assert.False(t, created)

	// Registered but never reported: no pose yet.
	_, err := s.Get("late")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.Snapshot())

	// The first report applies whatever its timestamp.
	s.Update(report("early", 50, 0, 0))
	assert.True(t, s.Update(report("late", 0, 7, 7)))

	got, err := s.Get("late")
	require.NoError(t, err)
	assert.Equal(t, []models.Waypoint{{X: 3}}, got.Path)

	assert.Equal(t, []string{"late", "early"}, s.RankedIDs())
	assert.Equal(t, []string{"late:0", "early:1"}, hooked)

	registered, reported := s.Count()
	assert.Equal(t, 2, registered)
	assert.Equal(t, 2, reported)
}

func TestApplyAssignmentIgnoresUnknownAgents(t *testing.T) {
	s := New()
	s.Update(report("a", 1, 0, 0))

	s.ApplyAssignment(map[string]models.MotionState{
		"a":     models.MotionResume,
		"ghost": models.MotionResume,
	})

	got, _ := s.Get("a")
	assert.Equal(t, models.MotionResume, got.State)
	_, err := s.Get("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentUpdatesAndSnapshots(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("agent-%d", w)
			for ts := int64(1); ts <= 200; ts++ {
				r := report(id, ts, float64(ts), float64(ts))
				r.Path = []models.Waypoint{{X: 1}, {X: 2}}
				s.Update(r)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, a := range s.Snapshot() {
				// x and y are always written together.
				assert.Equal(t, a.X, a.Y)
			}
		}
	}()
	wg.Wait()

	for _, a := range s.Snapshot() {
		assert.Equal(t, int64(200), a.Timestamp)
	}
}
