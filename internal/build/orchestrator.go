// Package build drives the build job state machine: triggering, ticket
// progress, the post-build submit sub-flow, restart, and cancellation.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/config"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/ghub"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/notify"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/project"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskPayload is the queue payload identifying where a build runs.
type TaskPayload struct {
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
	Workdir   string `json:"workdir"`
}

// Orchestrator coordinates build jobs against sandboxes and the durable
// queue.
type Orchestrator struct {
	db       *gorm.DB
	queue    queue.Queue
	registry *sandbox.Registry
	git      sandbox.Git
	notifier *notify.Notifier
	logger   *slog.Logger
	github   config.GitHubConfig

	// newPullRequester builds a per-call GitHub client; swappable in tests.
	newPullRequester func(ctx context.Context, token string) PullRequester
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(db *gorm.DB, q queue.Queue, registry *sandbox.Registry, git sandbox.Git, notifier *notify.Notifier, github config.GitHubConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:       db,
		queue:    q,
		registry: registry,
		git:      git,
		notifier: notifier,
		logger:   logger,
		github:   github,
		newPullRequester: func(ctx context.Context, token string) PullRequester {
			return ghub.NewClient(ctx, token)
		},
	}
}

// Trigger creates a pending build job and submits it to the queue. The
// sandbox must be running; the pre-build commit sha is captured here, at
// enqueue time, so cancellation never has to infer it later. Enqueue is not
// synchronous with execution start.
func (o *Orchestrator) Trigger(ctx context.Context, projectID, sessionID string, totalTickets int) (*models.BuildJob, error) {
	if _, err := project.RequireStatusAtLeast(o.db, projectID, models.ProjectEnvironmentsReady); err != nil {
		return nil, err
	}

	sb, err := o.registry.Get(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if sb.Status != sandbox.StatusRunning {
		return nil, &kerr.InvalidStateError{Entity: "sandbox " + sb.Name, Have: sb.Status, Want: sandbox.StatusRunning}
	}

	workdir := o.registry.Workdir(projectID, sessionID)
	preBuild, err := o.git.HeadCommit(workdir)
	if err != nil {
		return nil, fmt.Errorf("build: capture pre-build commit: %w", err)
	}

	job := &models.BuildJob{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		SessionID:      sessionID,
		Status:         models.BuildPending,
		TotalTickets:   totalTickets,
		PreBuildCommit: preBuild,
	}
	if err := o.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("build: create job row: %w", err)
	}

	if err := o.enqueue(ctx, job, workdir); err != nil {
		return nil, err
	}
	o.touchActivity(sessionID)

	o.logger.Info("build triggered", "job_id", job.ID, "project_id", projectID, "session_id", sessionID, "pre_build_commit", preBuild)
	return job, nil
}

func (o *Orchestrator) enqueue(ctx context.Context, job *models.BuildJob, workdir string) error {
	payload, err := json.Marshal(TaskPayload{
		ProjectID: job.ProjectID,
		SessionID: job.SessionID,
		Workdir:   workdir,
	})
	if err != nil {
		return fmt.Errorf("build: marshal payload: %w", err)
	}
	if err := o.queue.Enqueue(ctx, queue.Task{ID: job.ID, Name: "build", Payload: payload}); err != nil {
		// The row exists but never reached the queue: fail it so it does
		// not sit in pending forever.
		if _, ferr := jobs.MarkFailed(o.db, &models.BuildJob{}, job.ID, jobs.BuildMachine, models.BuildFailed, "enqueue failed"); ferr != nil {
			o.logger.Error("mark unqueued build failed", "job_id", job.ID, "error", ferr)
		}
		return &kerr.QueueError{Op: "enqueue", Err: err}
	}
	return nil
}

// Get loads a build job by id.
func (o *Orchestrator) Get(jobID string) (*models.BuildJob, error) {
	var job models.BuildJob
	if err := o.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, kerr.NotFound("build job", jobID)
		}
		return nil, fmt.Errorf("build: load job %s: %w", jobID, err)
	}
	return &job, nil
}

// Latest returns the session's most recent build job, or ErrNotFound.
func (o *Orchestrator) Latest(sessionID string) (*models.BuildJob, error) {
	var job models.BuildJob
	err := o.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, kerr.NotFound("build job for session", sessionID)
		}
		return nil, fmt.Errorf("build: latest for session %s: %w", sessionID, err)
	}
	return &job, nil
}

// MarkRunning is the worker callback for execution start.
func (o *Orchestrator) MarkRunning(jobID string) error {
	applied, err := jobs.MarkStarted(o.db, &models.BuildJob{}, jobID, jobs.BuildMachine, models.BuildRunning)
	if err != nil {
		return err
	}
	if !applied {
		return o.staleTransition(jobID, models.BuildRunning)
	}
	return nil
}

// MarkValidating is the worker callback entering post-edit validation.
func (o *Orchestrator) MarkValidating(jobID string) error {
	applied, err := jobs.Transition(o.db, &models.BuildJob{}, jobID, jobs.BuildMachine, models.BuildValidating, nil)
	if err != nil {
		return err
	}
	if !applied {
		return o.staleTransition(jobID, models.BuildValidating)
	}
	return nil
}

// ReportProgress persists a worker's ticket-level progress report so
// polling clients see live progress. Updates are last-write-wins on the
// single row; a job already in a terminal state ignores late reports.
func (o *Orchestrator) ReportProgress(jobID string, p queue.ProgressReport) error {
	result := o.db.Model(&models.BuildJob{}).
		Where("id = ? AND status IN ?", jobID, []string{models.BuildRunning, models.BuildValidating}).
		Updates(map[string]interface{}{
			"current_ticket_id": p.CurrentTicketID,
			"completed_tickets": p.CompletedTickets,
			"failed_tickets":    p.FailedTickets,
			"total_cost":        p.TotalCost,
		})
	if result.Error != nil {
		return fmt.Errorf("build: report progress %s: %w", jobID, result.Error)
	}
	return nil
}

// Complete is the worker callback for successful terminal completion.
func (o *Orchestrator) Complete(jobID string) error {
	applied, err := jobs.Transition(o.db, &models.BuildJob{}, jobID, jobs.BuildMachine, models.BuildCompleted, nil)
	if err != nil {
		return err
	}
	if !applied {
		return o.staleTransition(jobID, models.BuildCompleted)
	}
	if job, err := o.Get(jobID); err == nil {
		o.notifier.BuildFinished(job)
	}
	return nil
}

// Fail is the worker callback for a fatal error.
func (o *Orchestrator) Fail(jobID, message string) error {
	applied, err := jobs.MarkFailed(o.db, &models.BuildJob{}, jobID, jobs.BuildMachine, models.BuildFailed, message)
	if err != nil {
		return err
	}
	if !applied {
		return o.staleTransition(jobID, models.BuildFailed)
	}
	if job, err := o.Get(jobID); err == nil {
		o.notifier.BuildFinished(job)
	}
	return nil
}

// Restart creates a new build job from a failed or cancelled one. The new
// row references the original; the original row is never mutated. The new
// job carries forward only the tickets the original did not complete.
func (o *Orchestrator) Restart(ctx context.Context, originalID string) (*models.BuildJob, error) {
	original, err := o.Get(originalID)
	if err != nil {
		return nil, err
	}
	if original.Status != models.BuildFailed && original.Status != models.BuildCancelled {
		return nil, &kerr.InvalidStateError{
			Entity: "build job " + originalID,
			Have:   original.Status,
			Want:   models.BuildFailed + " or " + models.BuildCancelled,
		}
	}

	workdir := o.registry.Workdir(original.ProjectID, original.SessionID)
	preBuild, err := o.git.HeadCommit(workdir)
	if err != nil {
		// Fall back to the original's base: the tree was reset there on
		// cancellation.
		preBuild = original.PreBuildCommit
	}

	remaining := original.TotalTickets - original.CompletedTickets
	if remaining < 0 {
		remaining = 0
	}

	job := &models.BuildJob{
		ID:                 uuid.NewString(),
		ProjectID:          original.ProjectID,
		SessionID:          original.SessionID,
		Status:             models.BuildPending,
		TotalTickets:       remaining,
		PreBuildCommit:     preBuild,
		OriginalBuildJobID: &original.ID,
	}
	if err := o.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("build: create restart row: %w", err)
	}
	if err := o.enqueue(ctx, job, workdir); err != nil {
		return nil, err
	}

	o.logger.Info("build restarted", "job_id", job.ID, "original_id", original.ID, "remaining_tickets", remaining)
	return job, nil
}

// staleTransition maps a no-op CAS to the right error: missing row vs a row
// already past the requested state.
func (o *Orchestrator) staleTransition(jobID, want string) error {
	job, err := o.Get(jobID)
	if err != nil {
		return err
	}
	return &kerr.InvalidStateError{Entity: "build job " + jobID, Have: job.Status, Want: "state preceding " + want}
}

// touchActivity marks session activity for the idle reaper; failures are
// not fatal to the calling operation.
func (o *Orchestrator) touchActivity(sessionID string) {
	if err := project.TouchSession(o.db, sessionID); err != nil {
		o.logger.Warn("touch session activity", "session_id", sessionID, "error", err)
	}
}
