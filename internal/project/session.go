package project

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateSession creates a new chat session for a project. The branch name
// is generated once and never changes. The first session for a project
// becomes the default ("main") session; exactly one default exists per
// project.
func CreateSession(db *gorm.DB, projectID, title string) (*models.ChatSession, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project: project id is required")
	}
	if _, err := Get(db, projectID); err != nil {
		return nil, err
	}

	var session *models.ChatSession
	err := db.Transaction(func(tx *gorm.DB) error {
		var defaults int64
		if err := tx.Model(&models.ChatSession{}).
			Where("project_id = ? AND is_default = ?", projectID, true).
			Count(&defaults).Error; err != nil {
			return fmt.Errorf("count default sessions: %w", err)
		}

		id := uuid.NewString()
		session = &models.ChatSession{
			ID:             id,
			ProjectID:      projectID,
			Title:          title,
			BranchName:     BranchName(id),
			IsDefault:      defaults == 0,
			Status:         "active",
			LastActivityAt: time.Now(),
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("project: create session: %w", err)
	}
	return session, nil
}

// GetSession loads a session by id.
func GetSession(db *gorm.DB, sessionID string) (*models.ChatSession, error) {
	var s models.ChatSession
	if err := db.First(&s, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, kerr.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("project: load session %s: %w", sessionID, err)
	}
	return &s, nil
}

// BranchName derives the immutable session branch name from the session id.
func BranchName(sessionID string) string {
	short := sessionID
	if i := strings.Index(sessionID, "-"); i > 0 {
		short = sessionID[:i]
	}
	return "kosuke/session-" + short
}
