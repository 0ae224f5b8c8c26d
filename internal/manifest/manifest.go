// Package manifest loads the optional fleet manifest: the agents the hub
// expects, in priority order, with their footprints and paths.
package manifest

import (
	"fmt"
	"os"

	"collision-hub/internal/conflict"
	"collision-hub/internal/geometry"
	"collision-hub/internal/models"

	"gopkg.in/yaml.v3"
)

// Agent is one manifest entry.
type Agent struct {
	DeviceID  string              `yaml:"device_id"`
	Footprint *geometry.Footprint `yaml:"footprint,omitempty"`
	Path      []models.Waypoint   `yaml:"path,omitempty"`
}

// Manifest lists agents in priority order; the first entry has rank 0.
type Manifest struct {
	DefaultFootprint *geometry.Footprint `yaml:"default_footprint,omitempty"`
	Agents           []Agent             `yaml:"agents"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}
	return &m, nil
}

// Validate rejects empty or duplicate ids and non-positive footprints.
func (m *Manifest) Validate() error {
	if m.DefaultFootprint != nil && !positive(*m.DefaultFootprint) {
		return fmt.Errorf("default_footprint must have positive length and width")
	}
	seen := make(map[string]bool, len(m.Agents))
	for i, a := range m.Agents {
		if a.DeviceID == "" {
			return fmt.Errorf("agents[%d]: device_id is required", i)
		}
		if seen[a.DeviceID] {
			return fmt.Errorf("agents[%d]: duplicate device_id %q", i, a.DeviceID)
		}
		seen[a.DeviceID] = true
		if a.Footprint != nil && !positive(*a.Footprint) {
			return fmt.Errorf("agents[%d]: footprint must have positive length and width", i)
		}
	}
	return nil
}

// Footprints merges the manifest into a footprint table. The manifest
// default wins over fallback.
func (m *Manifest) Footprints(fallback geometry.Footprint) conflict.FootprintTable {
	table := conflict.FootprintTable{
		Default:   fallback,
		Overrides: make(map[string]geometry.Footprint),
	}
	if m == nil {
		return table
	}
	if m.DefaultFootprint != nil {
		table.Default = *m.DefaultFootprint
	}
	for _, a := range m.Agents {
		if a.Footprint != nil {
			table.Overrides[a.DeviceID] = *a.Footprint
		}
	}
	return table
}

func positive(f geometry.Footprint) bool {
	return f.Length > 0 && f.Width > 0
}
