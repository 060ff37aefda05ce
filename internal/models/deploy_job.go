package models

import "time"

// DeployJob statuses.
const (
	DeployPending   = "pending"
	DeployRunning   = "running"
	DeployCompleted = "completed"
	DeployFailed    = "failed"
	DeployCancelled = "cancelled"
)

// DeployJob tracks a deployment of a project's default branch.
type DeployJob struct {
	ID           string `gorm:"primaryKey;size:36"`
	ProjectID    string `gorm:"size:36;index;not null"`
	SessionID    string `gorm:"size:36;index"`
	Status       string `gorm:"size:16;default:pending;index"`
	DeployURL    string `gorm:"size:512"`
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
