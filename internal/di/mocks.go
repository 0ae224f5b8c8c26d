// internal/di/mocks.go
package di

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"collision-hub/internal/config"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewMockContainer Mock 구현체들로 구성된 테스트 컨테이너 생성
func NewMockContainer() (*Container, *MockDatabaseService, *MockCacheService, *MockMessagePublisher, error) {
	db := NewMockDatabaseService()
	cache := NewMockCacheService()
	pub := NewMockMessagePublisher()

	c, err := NewTestContainer(NewTestConfig(), db, cache, pub)
	return c, db, cache, pub, err
}

// NewTestConfig returns defaults suitable for in-process tests: random
// listener ports and a fast tick.
func NewTestConfig() *config.Config {
	return &config.Config{
		PersistenceEnabled: true,
		MirrorInterval:     10 * time.Millisecond,
		TopicPrefix:        "fleet",
		HTTPAddr:           "127.0.0.1:0",
		OpsAddr:            "127.0.0.1:0",
		TickInterval:       time.Millisecond,
		FootprintLength:    1,
		FootprintWidth:     1,
		PriorityMode:       config.PriorityRegistration,
		DispatchRetries:    2,
		OutboxSize:         16,
		LogLevel:           "error",
		Timeout:            time.Second,
	}
}

// =============================================================================
// Mock 구현체들 (테스트용)
// =============================================================================

type MockDatabaseService struct {
	mu     sync.Mutex
	agents map[string]models.AgentRecord
	logs   []models.CommandLog
}

func NewMockDatabaseService() *MockDatabaseService {
	return &MockDatabaseService{agents: make(map[string]models.AgentRecord)}
}

func (m *MockDatabaseService) LoadAgents() ([]models.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AgentRecord, 0, len(m.agents))
	for _, r := range m.agents {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MockDatabaseService) SaveAgent(record *models.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[record.DeviceID]; !ok {
		m.agents[record.DeviceID] = *record
	}
	return nil
}

func (m *MockDatabaseService) CreateCommandLogs(logs []models.CommandLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *MockDatabaseService) RecentCommandLogs(deviceID string, limit int) ([]models.CommandLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CommandLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].DeviceID == deviceID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// 테스트 헬퍼 메서드들
func (m *MockDatabaseService) Agents() map[string]models.AgentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.AgentRecord, len(m.agents))
	for k, v := range m.agents {
		out[k] = v
	}
	return out
}

func (m *MockDatabaseService) CommandLogs() []models.CommandLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CommandLog(nil), m.logs...)
}

type MockCacheService struct {
	mu       sync.Mutex
	data     map[string]string
	hashData map[string]map[string]string
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		data:     make(map[string]string),
		hashData: make(map[string]map[string]string),
	}
}

func (m *MockCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stringify(value)
	return nil
}

func (m *MockCacheService) HSet(ctx context.Context, key, field string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashData[key] == nil {
		m.hashData[key] = make(map[string]string)
	}
	m.hashData[key][field] = stringify(value)
	return nil
}

func (m *MockCacheService) Pipeline() interfaces.CachePipeline {
	return &MockCachePipeline{cache: m}
}

// Hash 테스트 헬퍼: 해시 내용 복사본
func (m *MockCacheService) Hash(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashData[key]))
	for k, v := range m.hashData[key] {
		out[k] = v
	}
	return out
}

type MockCachePipeline struct {
	cache *MockCacheService
	queue []func(ctx context.Context)
}

func (m *MockCachePipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.queue = append(m.queue, func(ctx context.Context) { _ = m.cache.Set(ctx, key, value, expiration) })
	return nil
}

func (m *MockCachePipeline) HSet(ctx context.Context, key, field string, value interface{}) error {
	m.queue = append(m.queue, func(ctx context.Context) { _ = m.cache.HSet(ctx, key, field, value) })
	return nil
}

func (m *MockCachePipeline) Exec(ctx context.Context) error {
	for _, op := range m.queue {
		op(ctx)
	}
	m.queue = nil
	return nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

type MockMessagePublisher struct {
	mu                sync.Mutex
	publishedMessages []MockMessage
	subscriptions     map[string]mqtt.MessageHandler
	connected         bool
}

type MockMessage struct {
	Topic   string
	Payload []byte
}

func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{
		subscriptions: make(map[string]mqtt.MessageHandler),
		connected:     true,
	}
}

func (m *MockMessagePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("MQTT client is not connected")
	}
	m.publishedMessages = append(m.publishedMessages, MockMessage{
		Topic:   topic,
		Payload: []byte(stringify(payload)),
	})
	return nil
}

func (m *MockMessagePublisher) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = callback
	return nil
}

func (m *MockMessagePublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMessagePublisher) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// Inject delivers payload to every subscription whose filter matches topic,
// as the broker would.
func (m *MockMessagePublisher) Inject(topic string, payload []byte) int {
	m.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, h := range m.subscriptions {
		if topicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(nil, &mockInbound{topic: topic, payload: payload})
	}
	return len(handlers)
}

func (m *MockMessagePublisher) GetPublishedMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.publishedMessages...)
}

// topicMatches supports the single-level "+" and trailing "#" wildcards.
func topicMatches(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

type mockInbound struct {
	topic   string
	payload []byte
}

func (m *mockInbound) Duplicate() bool   { return false }
func (m *mockInbound) Qos() byte         { return 1 }
func (m *mockInbound) Retained() bool    { return false }
func (m *mockInbound) Topic() string     { return m.topic }
func (m *mockInbound) MessageID() uint16 { return 0 }
func (m *mockInbound) Payload() []byte   { return m.payload }
func (m *mockInbound) Ack()              {}
