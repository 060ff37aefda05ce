package build

import (
	"context"
	"errors"
	"testing"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
)

// Scenario from the build contract: a running build with partial progress
// is cancelled, the queue entry removed, the working tree reset to the
// pre-build commit, and the row marked cancelled with a completion
// timestamp.
func TestCancel_RunningBuild(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 5)
	h.orch.MarkRunning(job.ID)
	h.orch.ReportProgress(job.ID, queue.ProgressReport{CompletedTickets: 2})

	result, err := h.orch.Cancel(context.Background(), CancelParams{
		BuildJobID:  job.ID,
		GithubToken: "ghs_token",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", result.Cancelled)
	}
	if result.ResetCommit != "aaaa1111" {
		t.Errorf("ResetCommit = %q, want pre-build sha", result.ResetCommit)
	}

	reloaded, _ := h.orch.Get(job.ID)
	if reloaded.Status != models.BuildCancelled {
		t.Errorf("Status = %q, want cancelled", reloaded.Status)
	}
	if reloaded.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	if resets := h.git.resetCalls(); len(resets) != 1 || resets[0] != "aaaa1111" {
		t.Errorf("git resets = %v", resets)
	}
	if removed := h.queue.Removed(); len(removed) != 1 || removed[0] != job.ID {
		t.Errorf("queue removals = %v", removed)
	}
}

// Cancelling twice yields {cancelled: 0} on the second call and never
// raises: idempotent client retries are safe.
func TestCancel_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)

	first, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: job.ID})
	if err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	if first.Cancelled != 1 {
		t.Errorf("first Cancelled = %d, want 1", first.Cancelled)
	}

	second, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: job.ID})
	if err != nil {
		t.Fatalf("second Cancel must not error: %v", err)
	}
	if second.Cancelled != 0 {
		t.Errorf("second Cancelled = %d, want 0", second.Cancelled)
	}
}

func TestCancel_QueueFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)
	h.queue.RemoveErr = errors.New("redis down")

	_, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: job.ID})
	var qe *kerr.QueueError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want QueueError", err)
	}

	// The job is untouched: the operation failed as a whole.
	reloaded, _ := h.orch.Get(job.ID)
	if reloaded.Status != models.BuildRunning {
		t.Errorf("Status = %q, want unchanged running", reloaded.Status)
	}
}

// Git reset failure degrades gracefully: the cancellation still succeeds,
// just without a resetCommit.
func TestCancel_ResetFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)
	h.git.gitErr = errors.New("sandbox unreachable")

	result, err := h.orch.Cancel(context.Background(), CancelParams{
		BuildJobID:  job.ID,
		GithubToken: "ghs_token",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", result.Cancelled)
	}
	if result.ResetCommit != "" {
		t.Errorf("ResetCommit = %q, want omitted on reset failure", result.ResetCommit)
	}

	reloaded, _ := h.orch.Get(job.ID)
	if reloaded.Status != models.BuildCancelled {
		t.Errorf("Status = %q, want cancelled despite reset failure", reloaded.Status)
	}
}

// Without a token the reset step is skipped entirely.
func TestCancel_NoTokenSkipsReset(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)

	result, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: job.ID})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.ResetCommit != "" {
		t.Errorf("ResetCommit = %q, want empty without token", result.ResetCommit)
	}
	if resets := h.git.resetCalls(); len(resets) != 0 {
		t.Errorf("git resets = %v, want none", resets)
	}
}

// A worker that persisted completion first wins the race: the cancel
// returns 0 and the store keeps the worker's terminal state.
func TestCancel_WorkerCompletionWins(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)
	h.orch.Complete(job.ID)

	result, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: job.ID})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.Cancelled != 0 {
		t.Errorf("Cancelled = %d, want 0", result.Cancelled)
	}

	reloaded, _ := h.orch.Get(job.ID)
	if reloaded.Status != models.BuildCompleted {
		t.Errorf("Status = %q, completion must win", reloaded.Status)
	}
}

func TestCancel_UnknownJob(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Cancel(context.Background(), CancelParams{BuildJobID: "missing"})
	if !errors.Is(err, kerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
