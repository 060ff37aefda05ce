package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Git is the sandbox's git-capable client. The working tree lives on a
// host path bind-mounted into the sandbox container, so git operations run
// against that directory. Tokens are supplied per-call and never cached.
type Git interface {
	CloneAtBranch(repoURL, token, branch, dir string) error
	HeadCommit(dir string) (string, error)
	ResetHard(dir, commit string) error
	CommitAll(dir, message string) (string, error)
	Push(dir, branch string) error
}

// ExecGit implements Git by shelling out to the git binary.
type ExecGit struct{}

// CloneAtBranch clones the repository at the given branch into dir. If the
// branch does not exist yet it is created from the default branch.
func (ExecGit) CloneAtBranch(repoURL, token, branch, dir string) error {
	if repoURL == "" {
		return fmt.Errorf("sandbox: repo URL is required")
	}
	if dir == "" {
		return fmt.Errorf("sandbox: target directory is required")
	}

	authURL := injectToken(repoURL, token)
	cmd := exec.Command("git", "clone", "--branch", branch, authURL, dir)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	// Remote branch may not exist yet: clone the default branch and create it.
	if strings.Contains(string(out), "Remote branch") || strings.Contains(string(out), "not found") {
		clone := exec.Command("git", "clone", authURL, dir)
		if cloneOut, cloneErr := clone.CombinedOutput(); cloneErr != nil {
			return fmt.Errorf("sandbox: clone %s: %s", repoURL, strings.TrimSpace(string(cloneOut)))
		}
		branchCmd := exec.Command("git", "checkout", "-b", branch)
		branchCmd.Dir = dir
		if branchOut, branchErr := branchCmd.CombinedOutput(); branchErr != nil {
			return fmt.Errorf("sandbox: create branch %q: %s", branch, strings.TrimSpace(string(branchOut)))
		}
		return nil
	}

	return fmt.Errorf("sandbox: clone %s at %q: %s", repoURL, branch, strings.TrimSpace(string(out)))
}

// HeadCommit returns the sha of the current HEAD in dir.
func (ExecGit) HeadCommit(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("sandbox: directory is required")
	}
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sandbox: head commit: %s", strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// ResetHard discards all working-tree changes and resets to the given commit.
func (ExecGit) ResetHard(dir, commit string) error {
	if dir == "" {
		return fmt.Errorf("sandbox: directory is required")
	}
	if commit == "" {
		return fmt.Errorf("sandbox: commit is required")
	}
	cmd := exec.Command("git", "reset", "--hard", commit)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sandbox: reset to %s: %s", commit, strings.TrimSpace(string(out)))
	}
	clean := exec.Command("git", "clean", "-fd")
	clean.Dir = dir
	if out, err := clean.CombinedOutput(); err != nil {
		return fmt.Errorf("sandbox: clean after reset: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// CommitAll stages and commits every change in dir, returning the new sha.
func (ExecGit) CommitAll(dir, message string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("sandbox: directory is required")
	}
	add := exec.Command("git", "add", "-A")
	add.Dir = dir
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("sandbox: stage changes: %s", strings.TrimSpace(string(out)))
	}
	commit := exec.Command("git", "commit", "-m", message)
	commit.Dir = dir
	if out, err := commit.CombinedOutput(); err != nil {
		return "", fmt.Errorf("sandbox: commit: %s", strings.TrimSpace(string(out)))
	}
	return ExecGit{}.HeadCommit(dir)
}

// Push pushes a branch to origin, retrying once on failure.
func (ExecGit) Push(dir, branch string) error {
	if branch == "" {
		return fmt.Errorf("sandbox: branch name is required")
	}
	if dir == "" {
		return fmt.Errorf("sandbox: directory is required")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		cmd := exec.Command("git", "push", "origin", branch)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("sandbox: push branch %q (attempt %d): %s", branch, attempt+1, strings.TrimSpace(string(out)))

		if attempt == 0 {
			time.Sleep(time.Second)
		}
	}
	return lastErr
}

// injectToken embeds an access token into an https clone URL. The token is
// used for this one command and discarded.
func injectToken(repoURL, token string) string {
	if token == "" {
		return repoURL
	}
	return strings.Replace(repoURL, "https://", "https://x-access-token:"+token+"@", 1)
}
