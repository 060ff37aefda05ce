package models

import "time"

// VamosJob statuses.
const (
	VamosPending   = "pending"
	VamosRunning   = "running"
	VamosCompleted = "completed"
	VamosFailed    = "failed"
	VamosCancelled = "cancelled"
)

// VamosJob is a multi-phase automated workflow, broader than a single build,
// tracked by phase count rather than tickets.
type VamosJob struct {
	ID              string  `gorm:"primaryKey;size:36"`
	ProjectID       string  `gorm:"size:36;index;not null"`
	SessionID       string  `gorm:"size:36;index"`
	Status          string  `gorm:"size:16;default:pending;index"`
	CurrentPhase    string  `gorm:"size:64"`
	CompletedPhases int     `gorm:"default:0"`
	TotalPhases     int     `gorm:"default:0"`
	TotalCost       float64 `gorm:"default:0"`
	ErrorMessage    string  `gorm:"type:text"`
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}
