// Package ghub wraps the GitHub API for the operations the core needs:
// branch-existence checks and pull-request creation. Tokens are supplied
// per call and never cached beyond the client built for that call.
package ghub

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Client is a per-call GitHub API client.
type Client struct {
	gh *github.Client
}

// NewClient builds a client authenticated with the given token.
func NewClient(ctx context.Context, token string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{gh: github.NewClient(oauth2.NewClient(ctx, src))}
}

// BranchExists reports whether the branch exists on the repository.
func (c *Client) BranchExists(ctx context.Context, owner, repo, branch string) (bool, error) {
	_, resp, err := c.gh.Repositories.GetBranch(ctx, owner, repo, branch, 3)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, &kerr.ExternalServiceError{Service: "github", Err: fmt.Errorf("get branch %s: %w", branch, err)}
	}
	return true, nil
}

// CreatePullRequest opens a PR from head into base and returns its URL.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (string, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
	})
	if err != nil {
		return "", &kerr.ExternalServiceError{Service: "github", Err: fmt.Errorf("create pull request: %w", err)}
	}
	return pr.GetHTMLURL(), nil
}
