// internal/interfaces/services.go
package interfaces

import (
	"context"
	"time"

	"collision-hub/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DatabaseService persists the agent registry and the command audit log.
type DatabaseService interface {
	// Agent registry
	LoadAgents() ([]models.AgentRecord, error)
	SaveAgent(record *models.AgentRecord) error

	// Command audit log
	CreateCommandLogs(logs []models.CommandLog) error
	RecentCommandLogs(deviceID string, limit int) ([]models.CommandLog, error)
}

// CacheService Redis 캐시 관련 서비스 인터페이스
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	HSet(ctx context.Context, key, field string, value interface{}) error

	Pipeline() CachePipeline
}

// CachePipeline batches writes into one round trip.
type CachePipeline interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	HSet(ctx context.Context, key, field string, value interface{}) error
	Exec(ctx context.Context) error
}

// MessagePublisher MQTT 메시지 발행 인터페이스
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Logger 로깅 인터페이스
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}
