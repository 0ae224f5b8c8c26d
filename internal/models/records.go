// internal/models/records.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// AgentRecord is the persisted registry entry of an agent. Rank is the
// registration sequence and never changes once written.
type AgentRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	DeviceID     string         `gorm:"size:100;not null;uniqueIndex" json:"device_id"`
	Rank         int            `gorm:"not null;index" json:"rank"`
	PathJSON     string         `gorm:"type:text" json:"path_json"`
	Length       float64        `json:"length"`
	Width        float64        `json:"width"`
	RegisteredAt time.Time      `gorm:"not null" json:"registered_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (AgentRecord) TableName() string {
	return "agent_records"
}

// CommandLog is one dispatched Stop/Resume command and its delivery outcome.
type CommandLog struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	DeviceID     string    `gorm:"size:100;not null;index" json:"device_id"`
	State        string    `gorm:"size:10;not null" json:"state"`
	Tick         uint64    `gorm:"not null" json:"tick"`
	Attempts     int       `gorm:"not null" json:"attempts"`
	Delivered    bool      `gorm:"not null" json:"delivered"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	DispatchedAt time.Time `gorm:"not null;index" json:"dispatched_at"`
}

func (CommandLog) TableName() string {
	return "command_logs"
}
