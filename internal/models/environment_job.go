package models

import "time"

// EnvironmentJob statuses.
const (
	EnvPending   = "pending"
	EnvAnalyzing = "analyzing"
	EnvCompleted = "completed"
	EnvFailed    = "failed"
	EnvCancelled = "cancelled"
)

// EnvironmentJob tracks one environment-analysis run for a project.
type EnvironmentJob struct {
	ID           string `gorm:"primaryKey;size:36"`
	ProjectID    string `gorm:"size:36;index;not null"`
	SessionID    string `gorm:"size:36;index"`
	Status       string `gorm:"size:16;default:pending;index"`
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
