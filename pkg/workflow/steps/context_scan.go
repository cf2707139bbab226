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
	"time"

	"github.com/tombee/taskforge/pkg/gitops"
	"github.com/tombee/taskforge/pkg/scan"
	"github.com/tombee/taskforge/pkg/workflow"
)

// ContextScanStep walks the repository working tree, persists a snapshot
// under .ma/context/, and commits it when the scan changed anything.
type ContextScanStep struct {
	deps *Deps
}

// NewContextScanStep returns the step factory for "context_scan".
func NewContextScanStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &ContextScanStep{deps: deps}
	}
}

func (s *ContextScanStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	git := gitops.New(wfCtx.RepoRoot, s.deps.logger())

	commit, err := git.RevParse(ctx, "HEAD")
	if err != nil {
		return workflow.StepOutput{}, err
	}

	snapshot, err := scan.Scan(wfCtx.RepoRoot, commit, scan.DefaultScannedAt(time.Now()))
	if err != nil {
		return workflow.StepOutput{}, err
	}

	written, err := scan.Persist(wfCtx.RepoRoot, snapshot)
	if err != nil {
		return workflow.StepOutput{}, err
	}

	out := map[string]interface{}{
		"commit":       snapshot.Commit,
		"fileCount":    snapshot.FileCount,
		"writtenPaths": written,
	}

	if cfgBool(cfg, "commit", true) && len(written) > 0 {
		result, commitErr := git.CommitAndPushPaths(ctx, wfCtx.Branch, "chore: refresh repository context snapshot", written)
		if result != nil {
			out["committed"] = result.Committed
			out["pushed"] = result.Pushed
			out["sha"] = result.SHA
		}
		if commitErr != nil {
			return workflow.StepOutput{Data: out}, commitErr
		}
	}

	return workflow.StepOutput{Data: out}, nil
}
