package models

import "time"

// BuildJob statuses. Completed, failed, and cancelled are terminal; a row
// never leaves a terminal state.
const (
	BuildPending    = "pending"
	BuildRunning    = "running"
	BuildValidating = "validating"
	BuildCompleted  = "completed"
	BuildFailed     = "failed"
	BuildCancelled  = "cancelled"
)

// BuildJob is one unit of AI-driven code-change work against a chat session,
// broken into tickets. PreBuildCommit is captured at enqueue time so that
// cancellation can reset the working tree without inferring "HEAD before the
// build" after the fact.
type BuildJob struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	ProjectID          string  `gorm:"size:36;index;not null"`
	SessionID          string  `gorm:"size:36;index;not null"`
	Status             string  `gorm:"size:16;default:pending;index"`
	CurrentTicketID    string  `gorm:"size:36"`
	CompletedTickets   int     `gorm:"default:0"`
	FailedTickets      int     `gorm:"default:0"`
	TotalTickets       int     `gorm:"default:0"`
	TotalCost          float64 `gorm:"default:0"`
	PreBuildCommit     string  `gorm:"size:40"`
	OriginalBuildJobID *string `gorm:"size:36;index"`
	ErrorMessage       string  `gorm:"type:text"`
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time

	Original *BuildJob `gorm:"foreignKey:OriginalBuildJobID"`
}

// Build submission sub-flow statuses.
const (
	SubmitPending    = "pending"
	SubmitReviewing  = "reviewing"
	SubmitCommitting = "committing"
	SubmitCreatingPR = "creating_pr"
	SubmitDone       = "done"
	SubmitFailed     = "failed"
)

// BuildSubmission tracks the post-build submit sub-flow
// (review, commit, pull request) for one completed build.
type BuildSubmission struct {
	ID             string `gorm:"primaryKey;size:36"`
	BuildJobID     string `gorm:"size:36;uniqueIndex;not null"`
	Status         string `gorm:"size:16;default:pending;index"`
	CommitSHA      string `gorm:"size:40"`
	PullRequestURL string `gorm:"size:512"`
	ErrorMessage   string `gorm:"type:text"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
