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

	"github.com/tombee/taskforge/pkg/diffspec"
	wferrors "github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/gitops"
	"github.com/tombee/taskforge/pkg/workflow"
)

// DiffApplyStep applies a diff described by a prior step's output or a
// workflow variable, optionally committing and pushing the result. A
// resulting mutation with zero changed files or (in real mode) no commit
// SHA is a coordinator-critical error: see §4.6.
type DiffApplyStep struct {
	deps *Deps
}

// NewDiffApplyStep returns the step factory for "diff_apply".
func NewDiffApplyStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &DiffApplyStep{deps: deps}
	}
}

func (s *DiffApplyStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	source := cfg["diff"]
	if source == nil {
		if key := cfgString(cfg, "diffFrom"); key != "" {
			if out, ok := wfCtx.StepOutputs[key]; ok {
				source = out.Data
			}
		}
	}
	if source == nil {
		return workflow.StepOutput{}, &wferrors.NoOpImplementationError{Step: "diff_apply", Reason: "no diff content found in config.diff or config.diffFrom"}
	}

	spec, err := diffspec.BuildEditSpec(source)
	if err != nil {
		return workflow.StepOutput{}, fmt.Errorf("diff_apply: %w", err)
	}
	if len(spec.Ops) == 0 {
		return workflow.StepOutput{}, &wferrors.NoOpImplementationError{Step: "diff_apply", Reason: "parsed edit spec has zero operations"}
	}

	dryRun := cfgBool(cfg, "dry_run", false)
	result, err := diffspec.Apply(spec, diffspec.Options{
		RepoRoot:          wfCtx.RepoRoot,
		AllowedExtensions: cfgStringSlice(cfg, "allowedExtensions"),
		MaxFileBytes:      int64(cfgInt(cfg, "maxFileBytes", 0)),
		DryRun:            dryRun,
	})
	if err != nil {
		return workflow.StepOutput{}, fmt.Errorf("diff_apply: %w", err)
	}
	if len(result.ChangedFiles) == 0 {
		return workflow.StepOutput{}, &wferrors.NoOpImplementationError{Step: "diff_apply", Reason: "apply produced zero changed files"}
	}

	out := map[string]interface{}{
		"dryRun":       result.DryRun,
		"changedFiles": result.ChangedFiles,
	}

	if dryRun {
		return workflow.StepOutput{Data: out}, nil
	}

	paths := make([]string, 0, len(result.ChangedFiles))
	for _, f := range result.ChangedFiles {
		paths = append(paths, f.Path)
	}

	git := gitops.New(wfCtx.RepoRoot, s.deps.logger())
	message := cfgString(cfg, "commitMessage")
	if message == "" {
		message = "chore: apply implementation diff"
	}

	commit, err := git.CommitAndPushPaths(ctx, wfCtx.Branch, message, paths)
	if commit != nil {
		out["committed"] = commit.Committed
		out["pushed"] = commit.Pushed
		out["sha"] = commit.SHA
		out["branch"] = wfCtx.Branch
		out["reason"] = commit.Reason
	}
	if err != nil {
		return workflow.StepOutput{Data: out}, err
	}
	if commit.SHA == "" {
		return workflow.StepOutput{Data: out}, &wferrors.NoOpImplementationError{Step: "diff_apply", Reason: "commit produced no SHA"}
	}

	return workflow.StepOutput{Data: out}, nil
}
