package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Priority modes accepted by PRIORITY_MODE.
const (
	PriorityRegistration = "registration"
	PriorityDeviceID     = "device_id"
)

type Config struct {
	// Database
	DBHost             string
	DBPort             string
	DBUser             string
	DBPassword         string
	DBName             string
	PersistenceEnabled bool

	// Redis
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	MirrorInterval time.Duration

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	TopicPrefix  string

	// HTTP
	HTTPAddr string
	OpsAddr  string

	// Hub
	TickInterval    time.Duration
	FleetSize       int
	WaitForFleet    bool
	FootprintLength float64
	FootprintWidth  float64
	SafetyMargin    float64
	PriorityMode    string
	ManifestPath    string
	DispatchRetries int
	OutboxSize      int

	// Application
	LogLevel string
	Timeout  time.Duration
}

// Load reads .env (if present) and the process environment. The returned
// config is treated as immutable for the rest of the run.
func Load() (*Config, error) {
	envFileErr := godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	timeoutSeconds, _ := strconv.Atoi(getEnv("TIMEOUT_SECONDS", "30"))
	fleetSize, _ := strconv.Atoi(getEnv("FLEET_SIZE", "0"))
	retries, _ := strconv.Atoi(getEnv("DISPATCH_RETRIES", "3"))
	outboxSize, _ := strconv.Atoi(getEnv("OUTBOX_SIZE", "16"))

	tickInterval, err := time.ParseDuration(getEnv("TICK_INTERVAL", "10ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}
	mirrorInterval, err := time.ParseDuration(getEnv("MIRROR_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIRROR_INTERVAL: %w", err)
	}

	cfg := &Config{
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "password"),
		DBName:             getEnv("DB_NAME", "collision_hub"),
		PersistenceEnabled: getBool("PERSISTENCE_ENABLED", true),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            redisDB,
		MirrorInterval:     mirrorInterval,
		MQTTBroker:         getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "collision-hub"),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		TopicPrefix:        strings.TrimSuffix(getEnv("TOPIC_PREFIX", "fleet"), "/"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":3030"),
		OpsAddr:            getEnv("OPS_ADDR", ":9090"),
		TickInterval:       tickInterval,
		FleetSize:          fleetSize,
		WaitForFleet:       getBool("WAIT_FOR_FLEET", true),
		FootprintLength:    getFloat("FOOTPRINT_LENGTH", 1.0),
		FootprintWidth:     getFloat("FOOTPRINT_WIDTH", 1.0),
		SafetyMargin:       getFloat("SAFETY_MARGIN", 0),
		PriorityMode:       getEnv("PRIORITY_MODE", PriorityRegistration),
		ManifestPath:       getEnv("MANIFEST_PATH", ""),
		DispatchRetries:    retries,
		OutboxSize:         outboxSize,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Timeout:            time.Duration(timeoutSeconds) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// A missing .env is normal in containers; the caller logs it once the
	// logger is configured.
	if envFileErr != nil && !os.IsNotExist(envFileErr) {
		return cfg, fmt.Errorf("failed to read .env: %w", envFileErr)
	}
	return cfg, nil
}

// Validate rejects values the hub cannot run with.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %v", c.TickInterval)
	}
	if c.FootprintLength < 0 || c.FootprintWidth < 0 {
		return fmt.Errorf("footprint dimensions must be non-negative")
	}
	if c.SafetyMargin < 0 {
		return fmt.Errorf("SAFETY_MARGIN must be non-negative, got %v", c.SafetyMargin)
	}
	if c.FleetSize < 0 {
		return fmt.Errorf("FLEET_SIZE must be non-negative, got %d", c.FleetSize)
	}
	switch c.PriorityMode {
	case PriorityRegistration, PriorityDeviceID:
	default:
		return fmt.Errorf("unknown PRIORITY_MODE %q", c.PriorityMode)
	}
	if c.DispatchRetries < 1 {
		c.DispatchRetries = 1
	}
	if c.OutboxSize < 1 {
		c.OutboxSize = 1
	}
	return nil
}

// ReportTopic is the wildcard subscription for inbound agent reports.
func (c *Config) ReportTopic() string {
	return c.TopicPrefix + "/+/report"
}

// CommandTopic is the outbound channel of a single agent.
func (c *Config) CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", c.TopicPrefix, deviceID)
}

// ErrorTopic receives notices about rejected inbound messages.
func (c *Config) ErrorTopic() string {
	return c.TopicPrefix + "/hub/errors"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}
