package build

import (
	"context"
	"errors"
	"testing"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"gorm.io/gorm"
)

type stubPR struct {
	url string
	err error

	owner, repo, head, base string
}

func (s *stubPR) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (string, error) {
	s.owner, s.repo, s.head, s.base = owner, repo, head, base
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func withStubPR(h *harness, pr *stubPR) {
	h.orch.newPullRequester = func(ctx context.Context, token string) PullRequester { return pr }
}

func completedBuild(t *testing.T, h *harness) *models.BuildJob {
	t.Helper()
	job, err := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	h.orch.MarkRunning(job.ID)
	if err := h.orch.Complete(job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	reloaded, _ := h.orch.Get(job.ID)
	return reloaded
}

func TestSubmit_FullFlow(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	pr := &stubPR{url: "https://github.com/acme/app/pull/7"}
	withStubPR(h, pr)

	job := completedBuild(t, h)

	sub, err := h.orch.Submit(context.Background(), job.ID, "ghs_token")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Status != models.SubmitDone {
		t.Errorf("Status = %q, want done", sub.Status)
	}
	if sub.PullRequestURL != pr.url {
		t.Errorf("PullRequestURL = %q", sub.PullRequestURL)
	}
	if pr.owner != "acme" || pr.repo != "app" {
		t.Errorf("PR opened against %s/%s", pr.owner, pr.repo)
	}
	if pr.head != "kosuke/session-s1" {
		t.Errorf("PR head = %q, want session branch", pr.head)
	}
	if pr.base != "main" {
		t.Errorf("PR base = %q", pr.base)
	}

	var row models.BuildSubmission
	h.db.First(&row, "build_job_id = ?", job.ID)
	if row.Status != models.SubmitDone || row.PullRequestURL != pr.url {
		t.Errorf("persisted submission = %+v", row)
	}
	if row.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestSubmit_RequiresCompleted(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	withStubPR(h, &stubPR{url: "u"})

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)

	_, err := h.orch.Submit(context.Background(), job.ID, "t")
	var ise *kerr.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

// A build superseded by a newer one for the same session cannot be
// submitted: the latest build per session is the authority.
func TestSubmit_RejectsStaleBuild(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	withStubPR(h, &stubPR{url: "u"})

	old := completedBuild(t, h)
	h.db.Model(&models.BuildJob{}).Where("id = ?", old.ID).
		Update("created_at", gorm.Expr("datetime(created_at, '-1 hour')"))
	completedBuild(t, h)

	_, err := h.orch.Submit(context.Background(), old.ID, "t")
	var ise *kerr.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError for stale build", err)
	}
}

func TestSubmit_FailedTicketsBlock(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	withStubPR(h, &stubPR{url: "u"})

	job, _ := h.orch.Trigger(context.Background(), "p1", "s1", 3)
	h.orch.MarkRunning(job.ID)
	h.db.Model(&models.BuildJob{}).Where("id = ?", job.ID).Update("failed_tickets", 1)
	h.orch.Complete(job.ID)

	_, err := h.orch.Submit(context.Background(), job.ID, "t")
	if err == nil {
		t.Fatal("expected review step to reject failed tickets")
	}

	var row models.BuildSubmission
	h.db.First(&row, "build_job_id = ?", job.ID)
	if row.Status != models.SubmitFailed {
		t.Errorf("submission Status = %q, want failed", row.Status)
	}
}

func TestSubmit_PRFailureMarksFailed(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	withStubPR(h, &stubPR{err: errors.New("api limit")})

	job := completedBuild(t, h)

	_, err := h.orch.Submit(context.Background(), job.ID, "t")
	if err == nil {
		t.Fatal("expected PR creation failure to surface")
	}

	var row models.BuildSubmission
	h.db.First(&row, "build_job_id = ?", job.ID)
	if row.Status != models.SubmitFailed {
		t.Errorf("Status = %q, want failed", row.Status)
	}
	if row.ErrorMessage == "" {
		t.Error("ErrorMessage not recorded")
	}
}

func TestSubmit_NoResubmission(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "p1", "s1")
	withStubPR(h, &stubPR{url: "u"})

	job := completedBuild(t, h)
	if _, err := h.orch.Submit(context.Background(), job.ID, "t"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	_, err := h.orch.Submit(context.Background(), job.ID, "t")
	var ise *kerr.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError on resubmit", err)
	}
}
