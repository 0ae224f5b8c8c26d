// internal/database/postgres.go
package database

import (
	"fmt"

	"collision-hub/internal/config"
	"collision-hub/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the hub's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AgentRecord{}, // 에이전트 등록 순서 (우선순위)
		&models.CommandLog{},  // Stop/Resume 명령 감사 로그
	)
}
