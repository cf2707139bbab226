// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gitops wraps the git CLI as a subprocess, providing the narrow
// set of operations GitOperationStep and QAIterationLoopStep need:
// branch checkout, staged commit, push, and ancestry comparisons. There
// is no native Go git library in play here deliberately — shelling out
// to the same git binary a human operator uses keeps behavior (hooks,
// credential helpers, .gitattributes) identical to a manual checkout.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	wferrors "github.com/tombee/taskforge/pkg/errors"
)

// Client runs git commands against one working tree.
type Client struct {
	RepoRoot string
	logger   *slog.Logger
}

// New creates a Client rooted at repoRoot.
func New(repoRoot string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{RepoRoot: repoRoot, logger: logger}
}

// run executes git with args inside RepoRoot and returns trimmed stdout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.RepoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Status returns `git status --porcelain`'s raw output; empty means
// clean.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.run(ctx, "status", "--porcelain")
}

// IsDirty reports whether the working tree has any uncommitted changes.
func (c *Client) IsDirty(ctx context.Context) (bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// RevParse resolves a ref (e.g. "HEAD") to its commit SHA.
func (c *Client) RevParse(ctx context.Context, ref string) (string, error) {
	return c.run(ctx, "rev-parse", ref)
}

// Log returns `git log` formatted as one "sha subject" line per commit,
// most recent first, limited to n entries.
func (c *Client) Log(ctx context.Context, n int) (string, error) {
	return c.run(ctx, "log", fmt.Sprintf("-%d", n), "--pretty=format:%H %s")
}

// DiffNameStatus returns `git diff --name-status` between two refs.
func (c *Client) DiffNameStatus(ctx context.Context, from, to string) (string, error) {
	return c.run(ctx, "diff", "--name-status", from, to)
}

// Remote returns the URL configured for the named remote (typically
// "origin"), or an empty string if none is configured.
func (c *Client) Remote(ctx context.Context, name string) (string, error) {
	url, err := c.run(ctx, "remote", "get-url", name)
	if err != nil {
		return "", nil
	}
	return url, nil
}

// CheckoutBranchFromBase creates (or resets) branch from baseBranch. Per
// §4.7, a dirty working tree aborts rather than silently stashing: the
// caller is expected to surface the returned *errors.DirtyWorkingTreeError
// as a workflow-aborting condition.
func (c *Client) CheckoutBranchFromBase(ctx context.Context, branch, baseBranch string) error {
	dirty, err := c.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		status, _ := c.Status(ctx)
		return &wferrors.DirtyWorkingTreeError{RepoRoot: c.RepoRoot, Status: status}
	}

	if _, err := c.run(ctx, "fetch", "origin", baseBranch); err != nil {
		c.logger.Warn("gitops: fetch of base branch failed, continuing with local ref", "base", baseBranch, "error", err)
	}

	if _, err := c.run(ctx, "checkout", "-B", branch, "origin/"+baseBranch); err != nil {
		if _, err2 := c.run(ctx, "checkout", "-B", branch, baseBranch); err2 != nil {
			return fmt.Errorf("gitops: checkout %s from %s: %w", branch, baseBranch, err)
		}
	}
	return nil
}

// CommitAndPushResult is the structured outcome of CommitAndPushPaths.
type CommitAndPushResult struct {
	Committed bool
	Pushed    bool
	SHA       string
	Reason    string
}

// CommitAndPushPaths stages paths, commits with message (skipping
// pre-commit hooks per §4.5 step 4), and pushes branch to origin. A
// committed-but-not-pushed outcome is reported with Reason "push_failed"
// so the caller can abort the workflow per §4.7.
func (c *Client) CommitAndPushPaths(ctx context.Context, branch, message string, paths []string) (*CommitAndPushResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("gitops: commit requested with zero changed paths")
	}

	args := append([]string{"add"}, paths...)
	if _, err := c.run(ctx, args...); err != nil {
		return nil, fmt.Errorf("gitops: staging paths: %w", err)
	}

	if _, err := c.run(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return nil, fmt.Errorf("gitops: commit: %w", err)
	}

	sha, err := c.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("gitops: resolving commit sha: %w", err)
	}

	result := &CommitAndPushResult{Committed: true, SHA: sha}

	remote, err := c.Remote(ctx, "origin")
	if err != nil || remote == "" {
		result.Reason = "push_failed"
		return result, &wferrors.PushFailedError{Branch: branch, Cause: fmt.Errorf("no origin remote configured")}
	}

	if _, err := c.run(ctx, "push", "origin", branch); err != nil {
		result.Reason = "push_failed"
		return result, &wferrors.PushFailedError{Branch: branch, Cause: err}
	}

	result.Pushed = true
	return result, nil
}

// VerifyRemoteBranchHasDiff reports whether branch on origin differs
// from baseBranch, used to confirm a push actually landed meaningful
// content rather than a no-op commit.
func (c *Client) VerifyRemoteBranchHasDiff(ctx context.Context, branch, baseBranch string) (bool, error) {
	if _, err := c.run(ctx, "fetch", "origin", branch, baseBranch); err != nil {
		return false, fmt.Errorf("gitops: fetching branches: %w", err)
	}
	diff, err := c.DiffNameStatus(ctx, "origin/"+baseBranch, "origin/"+branch)
	if err != nil {
		return false, err
	}
	return diff != "", nil
}

// EnsureBranchPublished pushes branch to origin if it is not already
// present there, without requiring a new commit (used after a checkout
// that produced no local changes but whose branch still needs a remote
// counterpart for a persona to resolve).
func (c *Client) EnsureBranchPublished(ctx context.Context, branch string) error {
	if _, err := c.run(ctx, "ls-remote", "--exit-code", "origin", "refs/heads/"+branch); err == nil {
		return nil
	}
	if _, err := c.run(ctx, "push", "-u", "origin", branch); err != nil {
		return &wferrors.PushFailedError{Branch: branch, Cause: err}
	}
	return nil
}

// CheckContextFreshness compares storedCommit (the commit a prior scan
// artifact was taken against) to HEAD, ignoring changes confined to
// .ma/**, to decide whether a full repository scan is required before
// this run can trust the stored context.
func (c *Client) CheckContextFreshness(ctx context.Context, storedCommit string) (stale bool, err error) {
	if storedCommit == "" {
		return true, nil
	}
	head, err := c.RevParse(ctx, "HEAD")
	if err != nil {
		return true, err
	}
	if head == storedCommit {
		return false, nil
	}

	diff, err := c.DiffNameStatus(ctx, storedCommit, head)
	if err != nil {
		return true, err
	}
	for _, line := range strings.Split(diff, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		path := fields[len(fields)-1]
		if !strings.HasPrefix(path, ".ma/") {
			return true, nil
		}
	}
	return false, nil
}

// Clone clones remote into RepoRoot, used when a workflow targets a
// repository the coordinator has not checked out yet.
func (c *Client) Clone(ctx context.Context, remote string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", remote, c.RepoRoot)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gitops: clone %s: %w: %s", remote, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
