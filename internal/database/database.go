package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.SSLMode == "disable" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}

// AllModels lists every table in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Tier{},
		&models.Organization{},
		&models.User{},
		&models.Team{},
		&models.Invite{},
		&models.ActivityLog{},
		&models.Identity{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// SeedTiers inserts the default tiers that do not exist yet.
func SeedTiers(ctx context.Context, db *gorm.DB) error {
	for _, tier := range models.DefaultTiers {
		var existing models.Tier
		err := db.WithContext(ctx).Where("name = ?", tier.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("looking up tier %s: %w", tier.Name, err)
		}
		t := tier
		if err := db.WithContext(ctx).Create(&t).Error; err != nil {
			return fmt.Errorf("creating tier %s: %w", tier.Name, err)
		}
	}
	return nil
}
