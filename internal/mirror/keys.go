// internal/mirror/keys.go
package mirror

import "fmt"

// Redis key patterns of the read model.
const (
	AgentStatePattern = "collision_hub:agent:%s"
	AssignmentKey     = "collision_hub:assignment"
	LastTickKey       = "collision_hub:last_tick"
)

// AgentStateKey is the key holding one agent's JSON state.
func AgentStateKey(deviceID string) string {
	return fmt.Sprintf(AgentStatePattern, deviceID)
}
