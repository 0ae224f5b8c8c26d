package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"collision-hub/internal/geometry"
	"collision-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
default_footprint:
  length: 1.2
  width: 0.8
agents:
  - device_id: robot2
    footprint:
      length: 3
      width: 1
    path:
      - {x: 0, y: 0, theta: 0}
      - {x: 4, y: 0, theta: 0}
  - device_id: robot1
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := Load(path)
	require.NoError(t, err)

	require.Len(t, m.Agents, 2)
	assert.Equal(t, "robot2", m.Agents[0].DeviceID)
	assert.Equal(t, "robot1", m.Agents[1].DeviceID)
	assert.Equal(t, []models.Waypoint{{X: 0}, {X: 4}}, m.Agents[0].Path)
	assert.Nil(t, m.Agents[1].Path)

	table := m.Footprints(geometry.Footprint{Length: 1, Width: 1})
	fp, ok := table.Footprint("robot2")
	require.True(t, ok)
	assert.Equal(t, geometry.Footprint{Length: 3, Width: 1}, fp)

	fp, ok = table.Footprint("robot1")
	require.True(t, ok)
	assert.Equal(t, geometry.Footprint{Length: 1.2, Width: 0.8}, fp)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadManifests(t *testing.T) {
	cases := map[string]string{
		"duplicate id":       "agents:\n  - device_id: a\n  - device_id: a\n",
		"empty id":           "agents:\n  - footprint: {length: 1, width: 1}\n",
		"zero footprint":     "agents:\n  - device_id: a\n    footprint: {length: 0, width: 1}\n",
		"bad default":        "default_footprint: {length: -1, width: 1}\nagents: []\n",
		"not a mapping list": "agents: robot1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestNilManifestFootprints(t *testing.T) {
	var m *Manifest
	table := m.Footprints(geometry.Footprint{Length: 2, Width: 2})
	fp, ok := table.Footprint("anyone")
	assert.True(t, ok)
	assert.Equal(t, 2.0, fp.Length)
}
