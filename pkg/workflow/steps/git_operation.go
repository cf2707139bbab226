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

package steps

import (
	"context"
	"fmt"

	"github.com/tombee/taskforge/pkg/gitops"
	"github.com/tombee/taskforge/pkg/scan"
	"github.com/tombee/taskforge/pkg/workflow"
)

// GitOperationStep is a thin switch over named gitops operations, per
// §4.7: checkoutBranchFromBase, commitAndPushPaths, verifyRemoteBranchHasDiff,
// ensureBranchPublished, checkContextFreshness.
type GitOperationStep struct {
	deps *Deps
}

// NewGitOperationStep returns the step factory for "git_operation".
func NewGitOperationStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &GitOperationStep{deps: deps}
	}
}

func (s *GitOperationStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	git := gitops.New(wfCtx.RepoRoot, s.deps.logger())
	operation := cfgString(cfg, "operation")

	switch operation {
	case "checkoutBranchFromBase":
		base := cfgString(cfg, "baseBranch")
		branch := cfgString(cfg, "branch")
		if branch == "" {
			branch = wfCtx.Branch
		}
		if err := git.CheckoutBranchFromBase(ctx, branch, base); err != nil {
			return workflow.StepOutput{}, err
		}
		return workflow.StepOutput{Data: map[string]interface{}{"branch": branch}}, nil

	case "commitAndPushPaths":
		branch := cfgString(cfg, "branch")
		if branch == "" {
			branch = wfCtx.Branch
		}
		message := cfgString(cfg, "message")
		paths := cfgStringSlice(cfg, "paths")
		result, err := git.CommitAndPushPaths(ctx, branch, message, paths)
		out := map[string]interface{}{}
		if result != nil {
			out["committed"] = result.Committed
			out["pushed"] = result.Pushed
			out["sha"] = result.SHA
			out["reason"] = result.Reason
		}
		return workflow.StepOutput{Data: out}, err

	case "verifyRemoteBranchHasDiff":
		branch := cfgString(cfg, "branch")
		if branch == "" {
			branch = wfCtx.Branch
		}
		hasDiff, err := git.VerifyRemoteBranchHasDiff(ctx, branch, cfgString(cfg, "baseBranch"))
		if err != nil {
			return workflow.StepOutput{}, err
		}
		return workflow.StepOutput{Data: map[string]interface{}{"hasDiff": hasDiff}}, nil

	case "ensureBranchPublished":
		branch := cfgString(cfg, "branch")
		if branch == "" {
			branch = wfCtx.Branch
		}
		if err := git.EnsureBranchPublished(ctx, branch); err != nil {
			return workflow.StepOutput{}, err
		}
		return workflow.StepOutput{Data: map[string]interface{}{"branch": branch}}, nil

	case "checkContextFreshness":
		snapshot, err := scan.Load(wfCtx.RepoRoot)
		if err != nil {
			return workflow.StepOutput{}, err
		}
		storedCommit := ""
		if snapshot != nil {
			storedCommit = snapshot.Commit
		}
		stale, err := git.CheckContextFreshness(ctx, storedCommit)
		if err != nil {
			return workflow.StepOutput{}, err
		}
		return workflow.StepOutput{Data: map[string]interface{}{"stale": stale}}, nil

	default:
		return workflow.StepOutput{}, fmt.Errorf("git_operation: unknown operation %q", operation)
	}
}
