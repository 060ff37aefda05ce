// Package project reads and advances the project status lifecycle and
// manages chat sessions. The lifecycle is owned elsewhere; this core gates
// its own operations on it and advances it only as an explicit side effect
// of successful operations.
package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"gorm.io/gorm"
)

// Get loads a project by id.
func Get(db *gorm.DB, projectID string) (*models.Project, error) {
	var p models.Project
	if err := db.First(&p, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, kerr.NotFound("project", projectID)
		}
		return nil, fmt.Errorf("project: load %s: %w", projectID, err)
	}
	return &p, nil
}

// RequireStatus verifies the project is in exactly the given status.
// Operations attempted from the wrong status fail; they are never silently
// corrected.
func RequireStatus(db *gorm.DB, projectID, want string) (*models.Project, error) {
	p, err := Get(db, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != want {
		return nil, &kerr.InvalidStateError{Entity: "project " + projectID, Have: p.Status, Want: want}
	}
	return p, nil
}

// RequireStatusAtLeast verifies the project has reached at least the given
// status in the lifecycle.
func RequireStatusAtLeast(db *gorm.DB, projectID, want string) (*models.Project, error) {
	p, err := Get(db, projectID)
	if err != nil {
		return nil, err
	}
	haveOrder, ok := models.ProjectStatusOrder[p.Status]
	wantOrder, wantOK := models.ProjectStatusOrder[want]
	if !ok || !wantOK || haveOrder < wantOrder {
		return nil, &kerr.InvalidStateError{Entity: "project " + projectID, Have: p.Status, Want: want + " or later"}
	}
	return p, nil
}

// AdvanceStatus moves a project exactly one step forward, from -> to, with
// a compare-and-set so a concurrent advance cannot skip or repeat steps.
// There is no rollback path.
func AdvanceStatus(db *gorm.DB, projectID, from, to string) error {
	fromOrder, fromOK := models.ProjectStatusOrder[from]
	toOrder, toOK := models.ProjectStatusOrder[to]
	if !fromOK || !toOK || toOrder != fromOrder+1 {
		return fmt.Errorf("project: %q -> %q is not a forward step", from, to)
	}

	result := db.Model(&models.Project{}).
		Where("id = ? AND status = ?", projectID, from).
		Update("status", to)
	if result.Error != nil {
		return fmt.Errorf("project: advance %s to %q: %w", projectID, to, result.Error)
	}
	if result.RowsAffected == 0 {
		p, err := Get(db, projectID)
		if err != nil {
			return err
		}
		return &kerr.InvalidStateError{Entity: "project " + projectID, Have: p.Status, Want: from}
	}
	return nil
}

// TouchSession updates a session's last-activity timestamp. Called on every
// preview access; an external idle reaper consumes it.
func TouchSession(db *gorm.DB, sessionID string) error {
	result := db.Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Update("last_activity_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("project: touch session %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return kerr.NotFound("session", sessionID)
	}
	return nil
}
