package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/project"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PullRequester is the slice of the GitHub client the submit flow needs.
type PullRequester interface {
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (string, error)
}

// Submit drives the post-build sub-flow for a completed build: review the
// result, commit and push the working tree, and open a pull request.
// Only the session's latest build may be submitted; a stale build id is
// rejected rather than guessing intent. One submission exists per build; a
// failed submission means restarting the build, not resubmitting.
func (o *Orchestrator) Submit(ctx context.Context, buildJobID, token string) (*models.BuildSubmission, error) {
	job, err := o.Get(buildJobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.BuildCompleted {
		return nil, &kerr.InvalidStateError{Entity: "build job " + buildJobID, Have: job.Status, Want: models.BuildCompleted}
	}

	latest, err := o.Latest(job.SessionID)
	if err != nil {
		return nil, err
	}
	if latest.ID != job.ID {
		return nil, &kerr.InvalidStateError{
			Entity: "build job " + buildJobID,
			Have:   "superseded by " + latest.ID,
			Want:   "latest build for session",
		}
	}

	var existing models.BuildSubmission
	err = o.db.First(&existing, "build_job_id = ?", job.ID).Error
	if err == nil {
		return nil, &kerr.InvalidStateError{Entity: "build job " + buildJobID, Have: "already submitted (" + existing.Status + ")", Want: "no prior submission"}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("build: check prior submission: %w", err)
	}

	proj, err := project.Get(o.db, job.ProjectID)
	if err != nil {
		return nil, err
	}
	session, err := project.GetSession(o.db, job.SessionID)
	if err != nil {
		return nil, err
	}

	sub := &models.BuildSubmission{
		ID:         uuid.NewString(),
		BuildJobID: job.ID,
		Status:     models.SubmitPending,
	}
	if err := o.db.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("build: create submission row: %w", err)
	}

	if err := o.runSubmitFlow(ctx, sub, job, proj, session, token); err != nil {
		return sub, err
	}
	return sub, nil
}

// runSubmitFlow walks the submission through its state machine, persisting
// each step so polling clients see where it is.
func (o *Orchestrator) runSubmitFlow(ctx context.Context, sub *models.BuildSubmission, job *models.BuildJob, proj *models.Project, session *models.ChatSession, token string) error {
	step := func(to string, extra map[string]interface{}) error {
		applied, err := jobs.Transition(o.db, &models.BuildSubmission{}, sub.ID, jobs.SubmitMachine, to, extra)
		if err != nil {
			return err
		}
		if !applied {
			return &kerr.InvalidStateError{Entity: "submission " + sub.ID, Have: sub.Status, Want: "state preceding " + to}
		}
		sub.Status = to
		return nil
	}
	fail := func(cause error) error {
		if _, err := jobs.Transition(o.db, &models.BuildSubmission{}, sub.ID, jobs.SubmitMachine, models.SubmitFailed, map[string]interface{}{
			"error_message": cause.Error(),
		}); err != nil {
			o.logger.Error("mark submission failed", "submission_id", sub.ID, "error", err)
		}
		sub.Status = models.SubmitFailed
		return cause
	}

	// Review: the build must have produced a clean result.
	if err := step(models.SubmitReviewing, nil); err != nil {
		return err
	}
	if job.FailedTickets > 0 {
		return fail(fmt.Errorf("build: %d failed tickets block submission", job.FailedTickets))
	}

	// Commit and push the working tree on the session branch.
	if err := step(models.SubmitCommitting, nil); err != nil {
		return err
	}
	workdir := o.registry.Workdir(job.ProjectID, job.SessionID)
	message := fmt.Sprintf("Apply build %s (%d tickets)", job.ID, job.CompletedTickets)
	sha, err := o.git.CommitAll(workdir, message)
	if err != nil {
		return fail(err)
	}
	if err := o.git.Push(workdir, session.BranchName); err != nil {
		return fail(err)
	}

	// Open the pull request.
	if err := step(models.SubmitCreatingPR, map[string]interface{}{"commit_sha": sha}); err != nil {
		return err
	}
	prURL, err := o.newPullRequester(ctx, token).CreatePullRequest(ctx,
		proj.GithubOwner, proj.GithubRepo,
		fmt.Sprintf("Kosuke: %s", session.Title),
		fmt.Sprintf("Automated changes from build %s.", job.ID),
		session.BranchName, o.github.BaseBranch,
	)
	if err != nil {
		return fail(err)
	}

	if err := step(models.SubmitDone, map[string]interface{}{
		"pull_request_url": prURL,
		"completed_at":     time.Now(),
	}); err != nil {
		return err
	}
	sub.CommitSHA = sha
	sub.PullRequestURL = prURL

	o.logger.Info("build submitted", "build_id", job.ID, "pr_url", prURL)
	return nil
}
