package models

import "time"

// ChatSession is one logical work branch within a project. Exactly one
// session per project is the default ("main") session. BranchName is
// generated once at creation and never changes.
type ChatSession struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ProjectID      string    `gorm:"size:36;index;not null"`
	Title          string    `gorm:"size:256"`
	BranchName     string    `gorm:"size:128;uniqueIndex;not null"`
	IsDefault      bool      `gorm:"default:false"`
	Status         string    `gorm:"size:16;default:active;index"`
	LastActivityAt time.Time `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
