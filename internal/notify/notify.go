// Package notify delivers best-effort Slack notifications for job
// lifecycle events. Delivery failures are logged, never returned.
package notify

import (
	"fmt"
	"log"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/config"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
	"github.com/slack-go/slack"
)

// Notifier posts to a Slack incoming webhook. A zero-value Notifier (no
// webhook configured) silently drops every message.
type Notifier struct {
	cfg config.SlackConfig

	// post is swappable in tests.
	post func(url string, msg *slack.WebhookMessage) error
}

// New builds a Notifier from Slack configuration.
func New(cfg config.SlackConfig) *Notifier {
	return &Notifier{cfg: cfg, post: slack.PostWebhook}
}

// BuildFinished announces a build reaching a terminal state.
func (n *Notifier) BuildFinished(job *models.BuildJob) {
	if job == nil {
		return
	}
	text := fmt.Sprintf("Build %s for project %s: %s (%d/%d tickets, $%.2f)",
		job.ID, job.ProjectID, job.Status, job.CompletedTickets, job.TotalTickets, job.TotalCost)
	if job.ErrorMessage != "" {
		text += " — " + job.ErrorMessage
	}
	n.send(text)
}

// BuildCancelled announces a cancellation, including the reset commit when
// the working tree was reverted.
func (n *Notifier) BuildCancelled(jobID, resetCommit string) {
	text := fmt.Sprintf("Build %s cancelled", jobID)
	if resetCommit != "" {
		text += fmt.Sprintf(", working tree reset to %.8s", resetCommit)
	}
	n.send(text)
}

func (n *Notifier) send(text string) {
	if n.cfg.WebhookURL == "" {
		return
	}
	msg := &slack.WebhookMessage{Text: text, Channel: n.cfg.Channel}
	if err := n.post(n.cfg.WebhookURL, msg); err != nil {
		log.Printf("notify: slack webhook failed: %v", err)
	}
}
