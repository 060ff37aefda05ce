package models

import "time"

// MaintenanceRun statuses.
const (
	MaintenancePending   = "pending"
	MaintenanceRunning   = "running"
	MaintenanceCompleted = "completed"
	MaintenanceFailed    = "failed"
	MaintenanceCancelled = "cancelled"
)

// MaintenanceJobConfig enables or disables one recurring maintenance job
// type for a project. At most one live recurring queue registration exists
// per enabled config, keyed by the config id.
type MaintenanceJobConfig struct {
	ID        string `gorm:"primaryKey;size:36"`
	ProjectID string `gorm:"size:36;not null;uniqueIndex:idx_project_job_type"`
	JobType   string `gorm:"size:64;not null;uniqueIndex:idx_project_job_type"`
	Enabled   bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaintenanceJobRun records one execution of a recurring maintenance job.
type MaintenanceJobRun struct {
	ID           string `gorm:"primaryKey;size:36"`
	ConfigID     string `gorm:"size:36;index;not null"`
	ProjectID    string `gorm:"size:36;index;not null"`
	JobType      string `gorm:"size:64;index"`
	Status       string `gorm:"size:16;default:pending;index"`
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
