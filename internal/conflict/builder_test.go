package conflict

import (
	"errors"
	"testing"

	"collision-hub/internal/geometry"
	"collision-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agent(id string, x, y, theta float64) models.AgentState {
	return models.AgentState{DeviceID: id, X: x, Y: y, Theta: theta}
}

func unitTable() FootprintTable {
	return FootprintTable{Default: geometry.Footprint{Length: 1, Width: 1}}
}

func TestBuildFindsOverlappingPair(t *testing.T) {
	b := NewBuilder(unitTable(), 0)

	g, err := b.Build([]models.AgentState{
		agent("robot1", 10, 10, 0),
		agent("robot2", 10.5, 10, 0),
		agent("robot3", 50, 50, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"robot1", "robot2", "robot3"}, g.Nodes())
	assert.Equal(t, []Edge{{A: "robot1", B: "robot2"}}, g.Edges())
	assert.True(t, g.HasEdge("robot2", "robot1"))
	assert.Empty(t, g.Neighbors("robot3"))
}

func TestBuildChain(t *testing.T) {
	b := NewBuilder(unitTable(), 0)

	g, err := b.Build([]models.AgentState{
		agent("A", 0, 0, 0),
		agent("B", 0.9, 0, 0),
		agent("C", 1.8, 0, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, []Edge{{A: "A", B: "B"}, {A: "B", B: "C"}}, g.Edges())
	assert.False(t, g.HasEdge("A", "C"))
}

func TestBuildAppliesSafetyMargin(t *testing.T) {
	snapshot := []models.AgentState{agent("a", 0, 0, 0), agent("b", 1.2, 0, 0)}

	g, err := NewBuilder(unitTable(), 0).Build(snapshot)
	require.NoError(t, err)
	assert.Empty(t, g.Edges())

	g, err = NewBuilder(unitTable(), 0.1).Build(snapshot)
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}

func TestBuildUsesOverrides(t *testing.T) {
	table := unitTable()
	table.Overrides = map[string]geometry.Footprint{"forklift": {Length: 4, Width: 1}}

	g, err := NewBuilder(table, 0).Build([]models.AgentState{
		agent("forklift", 0, 0, 0),
		agent("bot", 2.2, 0, 0),
	})
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)
}

func TestBuildMissingFootprintIsContractViolation(t *testing.T) {
	table := FootprintTable{Overrides: map[string]geometry.Footprint{"known": {Length: 1, Width: 1}}}

	_, err := NewBuilder(table, 0).Build([]models.AgentState{
		agent("known", 0, 0, 0),
		agent("ghost", 5, 5, 0),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFootprint))
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildEmptySnapshot(t *testing.T) {
	g, err := NewBuilder(unitTable(), 0).Build(nil)
	require.NoError(t, err)
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Edges())
}

func TestGraphIgnoresSelfLoops(t *testing.T) {
	g := NewGraph("a")
	g.AddEdge("a", "a")
	assert.Empty(t, g.Edges())
	assert.Empty(t, g.Endpoints())
}
