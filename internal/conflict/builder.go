// internal/conflict/builder.go
package conflict

import (
	"errors"
	"fmt"
	"strings"

	"collision-hub/internal/geometry"
	"collision-hub/internal/models"
)

// ErrMissingFootprint means an agent reached the builder without a known
// size. It indicates broken wiring between configuration and the store.
var ErrMissingFootprint = errors.New("missing footprint")

// FootprintSource resolves an agent's physical size.
type FootprintSource interface {
	Footprint(deviceID string) (geometry.Footprint, bool)
}

// FootprintTable is a default footprint plus per-agent overrides. A zero
// default means every agent must have an override.
type FootprintTable struct {
	Default   geometry.Footprint
	Overrides map[string]geometry.Footprint
}

// Footprint implements FootprintSource.
func (t FootprintTable) Footprint(deviceID string) (geometry.Footprint, bool) {
	if f, ok := t.Overrides[deviceID]; ok {
		return f, true
	}
	if t.Default == (geometry.Footprint{}) {
		return geometry.Footprint{}, false
	}
	return t.Default, true
}

// Builder turns a snapshot into a conflict graph.
//
// The pair scan is quadratic in the number of agents. It fits a handful to
// low hundreds of agents at a 10ms tick; larger fleets need spatial
// partitioning before pairing.
type Builder struct {
	footprints FootprintSource
	margin     float64
}

// NewBuilder creates a builder. margin inflates every footprint on all sides.
func NewBuilder(footprints FootprintSource, margin float64) *Builder {
	return &Builder{footprints: footprints, margin: margin}
}

// Build checks every unordered pair of distinct agents.
func (b *Builder) Build(snapshot []models.AgentState) (*Graph, error) {
	g := NewGraph()
	rects := make([]geometry.Rectangle, len(snapshot))

	var missing []string
	for i, s := range snapshot {
		g.AddNode(s.DeviceID)
		fp, ok := b.footprints.Footprint(s.DeviceID)
		if !ok {
			missing = append(missing, s.DeviceID)
			continue
		}
		rects[i] = geometry.NewRectangle(
			geometry.Pose{X: s.X, Y: s.Y, Theta: s.Theta},
			fp.Inflate(b.margin),
		)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w for agents [%s]", ErrMissingFootprint, strings.Join(missing, ", "))
	}

	for i := 0; i < len(snapshot); i++ {
		for j := i + 1; j < len(snapshot); j++ {
			if snapshot[i].DeviceID == snapshot[j].DeviceID {
				continue
			}
			if rects[i].Intersects(rects[j]) {
				g.AddEdge(snapshot[i].DeviceID, snapshot[j].DeviceID)
			}
		}
	}
	return g, nil
}
