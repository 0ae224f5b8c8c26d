// internal/services/implementations.go
package services

import (
	"context"
	"time"

	"collision-hub/internal/interfaces"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// Database Service Implementation
// =============================================================================

type DatabaseServiceImpl struct {
	db *gorm.DB
}

func NewDatabaseService(db *gorm.DB) interfaces.DatabaseService {
	return &DatabaseServiceImpl{db: db}
}

// LoadAgents returns the registry ordered by rank.
func (d *DatabaseServiceImpl) LoadAgents() ([]models.AgentRecord, error) {
	var records []models.AgentRecord
	err := d.db.Order("rank ASC").Find(&records).Error
	return records, err
}

// SaveAgent inserts a registry entry. An existing entry keeps its rank.
func (d *DatabaseServiceImpl) SaveAgent(record *models.AgentRecord) error {
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoNothing: true,
	}).Create(record).Error
}

func (d *DatabaseServiceImpl) CreateCommandLogs(logs []models.CommandLog) error {
	if len(logs) == 0 {
		return nil
	}
	return d.db.CreateInBatches(logs, 100).Error
}

func (d *DatabaseServiceImpl) RecentCommandLogs(deviceID string, limit int) ([]models.CommandLog, error) {
	var logs []models.CommandLog
	err := d.db.Where("device_id = ?", deviceID).
		Order("dispatched_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// =============================================================================
// Cache Service Implementation
// =============================================================================

type CacheServiceImpl struct {
	client *redis.Client
}

func NewCacheService(client *redis.Client) interfaces.CacheService {
	return &CacheServiceImpl{client: client}
}

func (c *CacheServiceImpl) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *CacheServiceImpl) HSet(ctx context.Context, key, field string, value interface{}) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

func (c *CacheServiceImpl) Pipeline() interfaces.CachePipeline {
	return &CachePipelineImpl{pipeline: c.client.Pipeline()}
}

type CachePipelineImpl struct {
	pipeline redis.Pipeliner
}

func (c *CachePipelineImpl) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.pipeline.Set(ctx, key, value, expiration)
	return nil
}

func (c *CachePipelineImpl) HSet(ctx context.Context, key, field string, value interface{}) error {
	c.pipeline.HSet(ctx, key, field, value)
	return nil
}

func (c *CachePipelineImpl) Exec(ctx context.Context) error {
	_, err := c.pipeline.Exec(ctx)
	return err
}

// =============================================================================
// Logger Implementation
// =============================================================================

// NewLogger applies the level to the global logger and returns it.
func NewLogger(level string) interfaces.Logger {
	utils.SetupLogger(level)
	return utils.Logger
}
