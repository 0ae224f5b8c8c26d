// internal/models/agent_state.go
package models

import (
	"fmt"
	"math"
)

// MotionState is the hub's control decision for one agent.
type MotionState string

const (
	MotionStop   MotionState = "Stop"
	MotionResume MotionState = "Resume"
)

// Valid reports whether s is one of the two control decisions.
func (s MotionState) Valid() bool {
	return s == MotionStop || s == MotionResume
}

// Waypoint is one pose on an agent's predefined path.
type Waypoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// AgentState is the hub's latest view of one agent.
type AgentState struct {
	DeviceID     string      `json:"device_id"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Theta        float64     `json:"theta"`
	Loaded       bool        `json:"loaded"`
	Timestamp    int64       `json:"timestamp"` // epoch milliseconds
	Path         []Waypoint  `json:"path"`
	State        MotionState `json:"state"`
	BatteryLevel float64     `json:"battery_level"`
}

// Clone returns a deep copy; Path is never shared between copies.
func (a AgentState) Clone() AgentState {
	out := a
	if a.Path != nil {
		out.Path = make([]Waypoint, len(a.Path))
		copy(out.Path, a.Path)
	}
	return out
}

// Report is the inbound pose/state message of an agent. The hub owns the
// State field, so any value an agent sends there is ignored.
type Report struct {
	DeviceID     string     `json:"device_id"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Theta        float64    `json:"theta"`
	Loaded       bool       `json:"loaded"`
	Timestamp    int64      `json:"timestamp"`
	Path         []Waypoint `json:"path"`
	BatteryLevel float64    `json:"battery_level"`
	State        *string    `json:"state,omitempty"`
}

// Validate checks the fields the decoder cannot check on its own.
func (r *Report) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	for name, v := range map[string]float64{
		"x": r.X, "y": r.Y, "theta": r.Theta, "battery_level": r.BatteryLevel,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		return fmt.Errorf("battery_level %v outside [0,100]", r.BatteryLevel)
	}
	if r.Timestamp < 0 {
		return fmt.Errorf("timestamp must be non-negative")
	}
	for i, wp := range r.Path {
		if math.IsNaN(wp.X) || math.IsNaN(wp.Y) || math.IsNaN(wp.Theta) ||
			math.IsInf(wp.X, 0) || math.IsInf(wp.Y, 0) || math.IsInf(wp.Theta, 0) {
			return fmt.Errorf("path[%d] must be finite", i)
		}
	}
	return nil
}

// Command is the outbound control message for one agent.
type Command struct {
	DeviceID string      `json:"device_id"`
	State    MotionState `json:"state"`
}

// NormalizeTheta maps any finite heading into (-π, π].
func NormalizeTheta(theta float64) float64 {
	t := math.Mod(theta, 2*math.Pi)
	if t <= -math.Pi {
		t += 2 * math.Pi
	} else if t > math.Pi {
		t -= 2 * math.Pi
	}
	return t
}
