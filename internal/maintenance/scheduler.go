// Package maintenance manages recurring, project-scoped background jobs:
// interval computation and the recurring queue registrations that mirror
// each config's enabled flag.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Maintenance job types and their fixed intervals. Interval-based only,
// never calendar expressions.
var intervals = map[string]time.Duration{
	"dependency_update": 24 * time.Hour,
	"security_scan":     12 * time.Hour,
	"performance_audit": 7 * 24 * time.Hour,
	"cleanup":           72 * time.Hour,
}

// Interval returns the fixed interval for a job type.
func Interval(jobType string) (time.Duration, error) {
	d, ok := intervals[jobType]
	if !ok {
		return 0, fmt.Errorf("maintenance: unknown job type %q", jobType)
	}
	return d, nil
}

// NextRun computes the next run timestamp for a job type from now.
func NextRun(jobType string, now time.Time) (time.Time, error) {
	d, err := Interval(jobType)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// JobTypes lists the known maintenance job types.
func JobTypes() []string {
	out := make([]string, 0, len(intervals))
	for t := range intervals {
		out = append(out, t)
	}
	return out
}

// TaskPayload identifies the config a recurring run executes for.
type TaskPayload struct {
	ConfigID  string `json:"configId"`
	ProjectID string `json:"projectId"`
	JobType   string `json:"jobType"`
}

// Scheduler keeps recurring queue registrations in lockstep with
// MaintenanceJobConfig rows.
type Scheduler struct {
	db     *gorm.DB
	queue  queue.Queue
	logger *slog.Logger
}

// NewScheduler wires the scheduler.
func NewScheduler(db *gorm.DB, q queue.Queue, logger *slog.Logger) *Scheduler {
	return &Scheduler{db: db, queue: q, logger: logger}
}

// Schedule registers the recurring queue entry for a config, keyed by the
// config id so at most one entry exists per config.
func (s *Scheduler) Schedule(ctx context.Context, configID, projectID, jobType string) error {
	d, err := Interval(jobType)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(TaskPayload{ConfigID: configID, ProjectID: projectID, JobType: jobType})
	if err != nil {
		return fmt.Errorf("maintenance: marshal payload: %w", err)
	}

	every := fmt.Sprintf("@every %s", d)
	task := queue.Task{ID: configID, Name: "maintenance", Payload: payload}
	if err := s.queue.EnqueueRecurring(ctx, configID, every, task); err != nil {
		return &kerr.QueueError{Op: "recurring-register", Err: err}
	}
	return nil
}

// Unschedule removes the recurring queue entry for a config.
func (s *Scheduler) Unschedule(ctx context.Context, configID string) error {
	if err := s.queue.RemoveRecurring(ctx, configID); err != nil {
		return &kerr.QueueError{Op: "recurring-unregister", Err: err}
	}
	return nil
}

// Toggle upserts the config row and applies exactly one of schedule or
// unschedule to match the new enabled value. The row write and the
// registration change succeed or fail together: a queue failure rolls the
// row back so the flag never disagrees with the registration.
func (s *Scheduler) Toggle(ctx context.Context, projectID, jobType string, enabled bool) (*models.MaintenanceJobConfig, error) {
	if _, err := Interval(jobType); err != nil {
		return nil, err
	}

	var cfg models.MaintenanceJobConfig
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cfg = models.MaintenanceJobConfig{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			JobType:   jobType,
			Enabled:   enabled,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "job_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).Create(&cfg)
		if result.Error != nil {
			return fmt.Errorf("upsert config: %w", result.Error)
		}

		// The upsert path keeps the existing row id; reload into a zero
		// struct so the generated id does not leak into the query.
		var stored models.MaintenanceJobConfig
		if err := tx.Take(&stored, "project_id = ? AND job_type = ?", projectID, jobType).Error; err != nil {
			return fmt.Errorf("reload config: %w", err)
		}
		cfg = stored

		if enabled {
			return s.Schedule(ctx, cfg.ID, projectID, jobType)
		}
		return s.Unschedule(ctx, cfg.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("maintenance: toggle %s/%s: %w", projectID, jobType, err)
	}

	s.logger.Info("maintenance toggled", "project_id", projectID, "job_type", jobType, "enabled", enabled)
	return &cfg, nil
}

// StartRun records a run row when a recurring task fires.
func (s *Scheduler) StartRun(configID string) (*models.MaintenanceJobRun, error) {
	var cfg models.MaintenanceJobConfig
	if err := s.db.First(&cfg, "id = ?", configID).Error; err != nil {
		return nil, kerr.NotFound("maintenance config", configID)
	}
	if !cfg.Enabled {
		return nil, &kerr.InvalidStateError{Entity: "maintenance config " + configID, Have: "disabled", Want: "enabled"}
	}

	now := time.Now()
	run := &models.MaintenanceJobRun{
		ID:        uuid.NewString(),
		ConfigID:  cfg.ID,
		ProjectID: cfg.ProjectID,
		JobType:   cfg.JobType,
		Status:    models.MaintenanceRunning,
		StartedAt: &now,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("maintenance: create run: %w", err)
	}
	return run, nil
}
