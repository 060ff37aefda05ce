package jobs

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Transition performs a compare-and-set status update on a job row: the row
// moves to the target status only if its current status has a legal
// transition into it. Returns true if the row was updated, false if the row
// was already past the transition (a concurrent writer won). Extra columns
// are written in the same UPDATE.
func Transition(db *gorm.DB, model interface{}, id string, m *Machine[string], to string, extra map[string]interface{}) (bool, error) {
	from := m.Predecessors(to)
	if len(from) == 0 {
		return false, fmt.Errorf("jobs: no transition into %q", to)
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if m.IsTerminal(to) && updates["completed_at"] == nil {
		updates["completed_at"] = time.Now()
	}

	result := db.Model(model).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("jobs: transition %s to %q: %w", id, to, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkStarted transitions a pending job to its running status and stamps
// started_at.
func MarkStarted(db *gorm.DB, model interface{}, id string, m *Machine[string], running string) (bool, error) {
	return Transition(db, model, id, m, running, map[string]interface{}{
		"started_at": time.Now(),
	})
}

// MarkFailed transitions a job to its failed status, recording the error
// message.
func MarkFailed(db *gorm.DB, model interface{}, id string, m *Machine[string], failed, message string) (bool, error) {
	return Transition(db, model, id, m, failed, map[string]interface{}{
		"error_message": message,
	})
}
