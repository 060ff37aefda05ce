package db

import (
	"fmt"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.ChatSession{},
		&models.BuildJob{},
		&models.BuildSubmission{},
		&models.DeployJob{},
		&models.VamosJob{},
		&models.EnvironmentJob{},
		&models.MaintenanceJobConfig{},
		&models.MaintenanceJobRun{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
