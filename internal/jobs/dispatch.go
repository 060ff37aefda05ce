package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/project"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dispatcher drives the deploy, vamos, and environment job families. The
// three share an enqueue/cancel/query shape; only their gating preconditions
// and progress fields differ, so one service covers them.
type Dispatcher struct {
	db       *gorm.DB
	queue    queue.Queue
	registry *sandbox.Registry
	logger   *slog.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(db *gorm.DB, q queue.Queue, registry *sandbox.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{db: db, queue: q, registry: registry, logger: logger}
}

type jobPayload struct {
	JobID     string `json:"jobId"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

func (d *Dispatcher) enqueue(ctx context.Context, name, jobID, projectID, sessionID string) error {
	payload, err := json.Marshal(jobPayload{JobID: jobID, ProjectID: projectID, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("jobs: marshal payload: %w", err)
	}
	if err := d.queue.Enqueue(ctx, queue.Task{ID: jobID, Name: name, Payload: payload}); err != nil {
		return &kerr.QueueError{Op: "enqueue", Err: err}
	}
	return nil
}

// TriggerDeploy creates a deploy job for a paid project and enqueues it.
func (d *Dispatcher) TriggerDeploy(ctx context.Context, projectID, sessionID string) (*models.DeployJob, error) {
	if _, err := project.RequireStatus(d.db, projectID, models.ProjectPaid); err != nil {
		return nil, err
	}

	job := &models.DeployJob{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		SessionID: sessionID,
		Status:    models.DeployPending,
	}
	if err := d.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("jobs: create deploy job: %w", err)
	}
	if err := d.enqueue(ctx, "deploy", job.ID, projectID, sessionID); err != nil {
		if _, ferr := MarkFailed(d.db, &models.DeployJob{}, job.ID, DeployMachine, models.DeployFailed, err.Error()); ferr != nil {
			d.logger.Error("mark deploy failed after enqueue error", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}
	d.logger.Info("deploy triggered", "job_id", job.ID, "project_id", projectID)
	return job, nil
}

// TriggerVamos creates a multi-phase workflow job for a paid project and
// enqueues it.
func (d *Dispatcher) TriggerVamos(ctx context.Context, projectID, sessionID string, totalPhases int) (*models.VamosJob, error) {
	if totalPhases <= 0 {
		return nil, fmt.Errorf("jobs: total phases must be positive")
	}
	if _, err := project.RequireStatus(d.db, projectID, models.ProjectPaid); err != nil {
		return nil, err
	}

	job := &models.VamosJob{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		SessionID:   sessionID,
		Status:      models.VamosPending,
		TotalPhases: totalPhases,
	}
	if err := d.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("jobs: create vamos job: %w", err)
	}
	if err := d.enqueue(ctx, "vamos", job.ID, projectID, sessionID); err != nil {
		if _, ferr := MarkFailed(d.db, &models.VamosJob{}, job.ID, VamosMachine, models.VamosFailed, err.Error()); ferr != nil {
			d.logger.Error("mark vamos failed after enqueue error", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}
	d.logger.Info("vamos triggered", "job_id", job.ID, "project_id", projectID, "total_phases", totalPhases)
	return job, nil
}

// TriggerEnvironment creates an environment-analysis job. Retrigger is only
// valid while the project is still in requirements_ready, and analysis needs
// a running sandbox to inspect.
func (d *Dispatcher) TriggerEnvironment(ctx context.Context, projectID, sessionID string) (*models.EnvironmentJob, error) {
	if _, err := project.RequireStatus(d.db, projectID, models.ProjectRequirementsReady); err != nil {
		return nil, err
	}
	sb, err := d.registry.Get(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if sb.Status != sandbox.StatusRunning {
		return nil, &kerr.InvalidStateError{
			Entity: "sandbox " + sb.Name,
			Have:   sb.Status,
			Want:   sandbox.StatusRunning,
		}
	}

	job := &models.EnvironmentJob{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		SessionID: sessionID,
		Status:    models.EnvPending,
	}
	if err := d.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("jobs: create environment job: %w", err)
	}
	if err := d.enqueue(ctx, "environment", job.ID, projectID, sessionID); err != nil {
		if _, ferr := MarkFailed(d.db, &models.EnvironmentJob{}, job.ID, EnvironmentMachine, models.EnvFailed, err.Error()); ferr != nil {
			d.logger.Error("mark environment failed after enqueue error", "job_id", job.ID, "error", ferr)
		}
		return nil, err
	}
	d.logger.Info("environment analysis triggered", "job_id", job.ID, "project_id", projectID)
	return job, nil
}

// ConfirmEnvironment completes an environment job and advances the project
// one step to environments_ready. The advance happens only on this explicit
// confirm call, never as a side effect of the analysis finishing.
func (d *Dispatcher) ConfirmEnvironment(ctx context.Context, projectID, jobID string) error {
	var job models.EnvironmentJob
	if err := d.db.First(&job, "id = ? AND project_id = ?", jobID, projectID).Error; err != nil {
		return kerr.NotFound("environment job", jobID)
	}
	if !EnvironmentMachine.IsTerminal(job.Status) {
		applied, err := Transition(d.db, &models.EnvironmentJob{}, jobID, EnvironmentMachine, models.EnvCompleted, nil)
		if err != nil {
			return err
		}
		if !applied {
			return &kerr.InvalidStateError{Entity: "environment job " + jobID, Have: job.Status, Want: models.EnvCompleted}
		}
	} else if job.Status != models.EnvCompleted {
		return &kerr.InvalidStateError{Entity: "environment job " + jobID, Have: job.Status, Want: models.EnvCompleted}
	}

	if err := project.AdvanceStatus(d.db, projectID, models.ProjectRequirementsReady, models.ProjectEnvironmentsReady); err != nil {
		return err
	}
	d.logger.Info("environment confirmed", "job_id", jobID, "project_id", projectID)
	return nil
}

// CancelResult reports how many rows a Cancel call moved to cancelled.
type CancelResult struct {
	Cancelled int `json:"cancelled"`
}

// cancel shares the cancellation order across the three families: terminal
// rows are a no-op, queue removal failure is fatal, then a compare-and-set
// write that a concurrently persisted completion wins.
func (d *Dispatcher) cancel(ctx context.Context, model interface{}, m *Machine[string], status, jobID, cancelled string) (*CancelResult, error) {
	if m.IsTerminal(status) {
		return &CancelResult{Cancelled: 0}, nil
	}
	if err := d.queue.Remove(ctx, jobID); err != nil {
		return nil, &kerr.QueueError{Op: "remove", Err: err}
	}
	applied, err := Transition(d.db, model, jobID, m, cancelled, map[string]interface{}{
		"completed_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return &CancelResult{Cancelled: 0}, nil
	}
	return &CancelResult{Cancelled: 1}, nil
}

// CancelDeploy cancels a deploy job. Idempotent.
func (d *Dispatcher) CancelDeploy(ctx context.Context, jobID string) (*CancelResult, error) {
	var job models.DeployJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("deploy job", jobID)
	}
	return d.cancel(ctx, &models.DeployJob{}, DeployMachine, job.Status, jobID, models.DeployCancelled)
}

// CancelVamos cancels a vamos job. Idempotent.
func (d *Dispatcher) CancelVamos(ctx context.Context, jobID string) (*CancelResult, error) {
	var job models.VamosJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("vamos job", jobID)
	}
	return d.cancel(ctx, &models.VamosJob{}, VamosMachine, job.Status, jobID, models.VamosCancelled)
}

// CancelEnvironment cancels an environment job. Idempotent.
func (d *Dispatcher) CancelEnvironment(ctx context.Context, jobID string) (*CancelResult, error) {
	var job models.EnvironmentJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("environment job", jobID)
	}
	return d.cancel(ctx, &models.EnvironmentJob{}, EnvironmentMachine, job.Status, jobID, models.EnvCancelled)
}

// ReportPhase persists vamos phase progress while the job is running.
// Reports arriving after a terminal transition are dropped.
func (d *Dispatcher) ReportPhase(jobID, phase string, completedPhases int, totalCost float64) error {
	result := d.db.Model(&models.VamosJob{}).
		Where("id = ? AND status = ?", jobID, models.VamosRunning).
		Updates(map[string]interface{}{
			"current_phase":    phase,
			"completed_phases": completedPhases,
			"total_cost":       totalCost,
		})
	if result.Error != nil {
		return fmt.Errorf("jobs: report phase for %s: %w", jobID, result.Error)
	}
	return nil
}

// GetDeploy returns a deploy job by id.
func (d *Dispatcher) GetDeploy(jobID string) (*models.DeployJob, error) {
	var job models.DeployJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("deploy job", jobID)
	}
	return &job, nil
}

// GetVamos returns a vamos job by id.
func (d *Dispatcher) GetVamos(jobID string) (*models.VamosJob, error) {
	var job models.VamosJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("vamos job", jobID)
	}
	return &job, nil
}

// GetEnvironment returns an environment job by id.
func (d *Dispatcher) GetEnvironment(jobID string) (*models.EnvironmentJob, error) {
	var job models.EnvironmentJob
	if err := d.db.First(&job, "id = ?", jobID).Error; err != nil {
		return nil, kerr.NotFound("environment job", jobID)
	}
	return &job, nil
}
