package build

import (
	"context"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/jobs"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
)

// CancelParams identifies the build to cancel. The token gates the
// best-effort working-tree reset; cancellation itself never needs it.
type CancelParams struct {
	BuildJobID  string
	GithubToken string
}

// CancelResult reports what the cancellation did. Cancelled is 0 when the
// job was already terminal (idempotent retries are safe) or when a worker
// won the completion race. ResetCommit is set only when the working tree
// was actually reverted.
type CancelResult struct {
	Cancelled   int    `json:"cancelled"`
	ResetCommit string `json:"resetCommit,omitempty"`
}

// Cancel atomically removes a build from the queue and reverts the
// sandbox's working tree to the commit recorded before the build started.
// The steps run in a fixed order under the same per-key lock sandbox
// creation uses:
//
//  1. terminal jobs are a no-op, not an error;
//  2. queue removal, covering queued and in-flight jobs — failure here is
//     fatal to the whole operation;
//  3. best-effort git reset to the pre-build commit when a running sandbox
//     and a token are available — failure is logged and degrades;
//  4. compare-and-set the row to cancelled; a worker that persisted
//     completion first wins and the store is left alone.
func (o *Orchestrator) Cancel(ctx context.Context, params CancelParams) (CancelResult, error) {
	job, err := o.Get(params.BuildJobID)
	if err != nil {
		return CancelResult{}, err
	}
	if jobs.BuildMachine.IsTerminal(job.Status) {
		return CancelResult{Cancelled: 0}, nil
	}

	key := sandbox.LockKey(job.ProjectID, job.SessionID)
	unlock := o.registry.Locks().Lock(key)
	defer unlock()

	// Re-read under the lock: a worker or a concurrent cancel may have
	// finished while we waited.
	job, err = o.Get(params.BuildJobID)
	if err != nil {
		return CancelResult{}, err
	}
	if jobs.BuildMachine.IsTerminal(job.Status) {
		return CancelResult{Cancelled: 0}, nil
	}

	if err := o.queue.Remove(ctx, job.ID); err != nil {
		return CancelResult{}, &kerr.QueueError{Op: "remove", Err: err}
	}

	result := CancelResult{}
	result.ResetCommit = o.resetWorkingTree(ctx, job, params.GithubToken)

	applied, err := jobs.Transition(o.db, &models.BuildJob{}, job.ID, jobs.BuildMachine, models.BuildCancelled, nil)
	if err != nil {
		return CancelResult{}, err
	}
	if applied {
		result.Cancelled = 1
		o.notifier.BuildCancelled(job.ID, result.ResetCommit)
		o.logger.Info("build cancelled", "job_id", job.ID, "reset_commit", result.ResetCommit)
	} else {
		// The worker persisted a terminal state first; the store is
		// authoritative and stays as the worker left it.
		o.logger.Info("cancel lost completion race", "job_id", job.ID)
	}
	return result, nil
}

// resetWorkingTree reverts the session branch to the commit recorded at
// enqueue time. Best-effort: any failure is logged and the cancellation
// proceeds without a reset commit.
func (o *Orchestrator) resetWorkingTree(ctx context.Context, job *models.BuildJob, token string) string {
	if token == "" || job.PreBuildCommit == "" {
		return ""
	}

	sb, err := o.registry.Get(ctx, job.ProjectID, job.SessionID)
	if err != nil || sb.Status != sandbox.StatusRunning {
		o.logger.Warn("skipping working-tree reset, sandbox not running",
			"job_id", job.ID, "error", err)
		return ""
	}

	workdir := o.registry.Workdir(job.ProjectID, job.SessionID)
	if err := o.git.ResetHard(workdir, job.PreBuildCommit); err != nil {
		o.logger.Warn("working-tree reset failed", "job_id", job.ID, "commit", job.PreBuildCommit, "error", err)
		return ""
	}
	return job.PreBuildCommit
}
