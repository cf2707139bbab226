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
	"github.com/tombee/taskforge/pkg/gitops"
	"github.com/tombee/taskforge/pkg/persona"
	"github.com/tombee/taskforge/pkg/workflow"
)

// unlimitedIterations is the sentinel cap value from §4.5.
const unlimitedIterations = "unlimited"

// qaIterationRecord is one entry of the returned iterationHistory.
type qaIterationRecord struct {
	Iteration      int    `json:"iteration"`
	Plan           string `json:"plan,omitempty"`
	Implementation string `json:"implementation,omitempty"`
	QAResult       string `json:"qa_result,omitempty"`
	Passed         bool   `json:"passed"`
	Error          string `json:"error,omitempty"`
}

// QAIterationLoopStep drives the fix/implement/diff-apply/commit/push/
// retest cycle described in §4.5, bounded by an integer cap or the
// "unlimited" sentinel.
type QAIterationLoopStep struct {
	deps *Deps
}

// NewQAIterationLoopStep returns the step factory for "qa_iteration_loop".
func NewQAIterationLoopStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &QAIterationLoopStep{deps: deps}
	}
}

func (s *QAIterationLoopStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	maxIter, unlimited := qaIterationCap(cfg)
	plannerPersona := cfgString(cfg, "plannerPersona")
	leadEngineerPersona := cfgString(cfg, "leadEngineerPersona")
	qaPersona := cfgString(cfg, "qaPersona")
	task := cfg["task"]
	qaFailure := cfg["qa_failure"]
	allowedExtensions := cfgStringSlice(cfg, "allowedExtensions")
	maxFileBytes := int64(cfgInt(cfg, "maxFileBytes", 0))

	timeoutMs := s.deps.timeoutMs(cfg, "timeoutMs")
	maxRetries := s.deps.maxRetries(cfg, "maxRetries")
	requestStream := s.deps.requestStream(cfg)

	client := s.deps.personaClient(wfCtx)
	git := gitops.New(wfCtx.RepoRoot, s.deps.logger())

	var history []qaIterationRecord

	for k := 1; unlimited || k <= maxIter; k++ {
		rec := qaIterationRecord{Iteration: k}

		planReply, err := client.RequestAndAwait(ctx, requestStream, persona.Request{
			WorkflowID: wfCtx.WorkflowID, ToPersona: plannerPersona, Step: "qa-plan-fix", Intent: "plan_fix",
			Payload: map[string]interface{}{
				"task": task, "qa_failure": qaFailure, "iteration": k, "planIteration": k,
				"previous_attempts": history, "repo": wfCtx.RepoRemote, "branch": wfCtx.Branch, "project_id": wfCtx.ProjectID,
			},
			Repo: wfCtx.RepoRemote, Branch: wfCtx.Branch, ProjectID: wfCtx.ProjectID,
		}, timeoutMs, maxRetries)
		if err != nil {
			if terminal(k, maxIter, unlimited) {
				return workflow.StepOutput{}, fmt.Errorf("qa_iteration_loop: iteration %d: planning fixes: %w", k, err)
			}
			rec.Error = err.Error()
			history = append(history, rec)
			continue
		}
		rec.Plan = planReply.Result

		implReply, err := client.RequestAndAwait(ctx, requestStream, persona.Request{
			WorkflowID: wfCtx.WorkflowID, ToPersona: leadEngineerPersona, Step: "qa-implement-fix", Intent: "implement_fix",
			Payload: map[string]interface{}{
				"task": task, "plan": planReply.Result, "iteration": k,
				"repo": wfCtx.RepoRemote, "branch": wfCtx.Branch, "project_id": wfCtx.ProjectID,
			},
			Repo: wfCtx.RepoRemote, Branch: wfCtx.Branch, ProjectID: wfCtx.ProjectID,
		}, timeoutMs, maxRetries)
		if err != nil {
			if terminal(k, maxIter, unlimited) {
				return workflow.StepOutput{}, fmt.Errorf("qa_iteration_loop: iteration %d: implementing fixes: %w", k, err)
			}
			rec.Error = err.Error()
			history = append(history, rec)
			continue
		}
		rec.Implementation = implReply.Result

		if err := s.applyAndCommit(ctx, git, implReply.Result, k, wfCtx.Branch, allowedExtensions, maxFileBytes); err != nil {
			if terminal(k, maxIter, unlimited) {
				return workflow.StepOutput{}, fmt.Errorf("qa_iteration_loop: iteration %d: %w", k, err)
			}
			rec.Error = err.Error()
			history = append(history, rec)
			continue
		}

		qaReply, err := client.RequestAndAwait(ctx, requestStream, persona.Request{
			WorkflowID: wfCtx.WorkflowID, ToPersona: qaPersona, Step: "qa-retest", Intent: "retest",
			Payload: map[string]interface{}{
				"task": task, "plan": planReply.Result, "implementation": implReply.Result, "iteration": k,
				"previous_attempts": history, "tdd_stage": cfg["tdd_stage"], "is_tdd_failing_test_stage": cfg["is_tdd_failing_test_stage"],
				"repo": wfCtx.RepoRemote, "branch": wfCtx.Branch, "project_id": wfCtx.ProjectID,
			},
			Repo: wfCtx.RepoRemote, Branch: wfCtx.Branch, ProjectID: wfCtx.ProjectID,
		}, timeoutMs, maxRetries)
		if err != nil {
			if terminal(k, maxIter, unlimited) {
				return workflow.StepOutput{}, fmt.Errorf("qa_iteration_loop: iteration %d: retesting: %w", k, err)
			}
			rec.Error = err.Error()
			history = append(history, rec)
			continue
		}
		rec.QAResult = qaReply.Result
		s.deps.logger().Debug("qa_iteration_loop: retest result received",
			"iteration", k, "result", s.deps.masker().MaskJSON(qaReply.Result))

		status := persona.NormalizeStatus(qaReply.Result)
		rec.Passed = persona.IsSuccess(status)
		history = append(history, rec)

		if rec.Passed {
			return workflow.StepOutput{Data: map[string]interface{}{
				"qa_request_status": string(status),
				"qa_request_result": qaReply.Result,
				"qa_iteration_count": k,
				"iterationHistory":   history,
			}}, nil
		}
	}

	return workflow.StepOutput{Data: map[string]interface{}{"iterationHistory": history}},
		fmt.Errorf("qa_iteration_loop: exhausted %d iterations without a passing QA result", len(history))
}

// applyAndCommit parses fenced diffs out of implementation, applies them
// under the repo root, and commits/pushes the result, per §4.5 steps 3-4.
func (s *QAIterationLoopStep) applyAndCommit(ctx context.Context, git *gitops.Client, implementation string, iteration int, branch string, allowedExtensions []string, maxFileBytes int64) error {
	spec, err := diffspec.BuildEditSpec(implementation)
	if err != nil {
		return fmt.Errorf("parsing implementation diff: %w", err)
	}

	result, err := diffspec.Apply(spec, diffspec.Options{
		RepoRoot: git.RepoRoot, AllowedExtensions: allowedExtensions, MaxFileBytes: maxFileBytes,
	})
	if err != nil {
		return fmt.Errorf("applying diff: %w", err)
	}
	if len(result.ChangedFiles) == 0 {
		return fmt.Errorf("diff applied but produced zero changed files")
	}

	paths := make([]string, 0, len(result.ChangedFiles))
	for _, f := range result.ChangedFiles {
		paths = append(paths, f.Path)
	}

	commit, err := git.CommitAndPushPaths(ctx, branch, fmt.Sprintf("fix(qa-iteration-%d): address QA feedback", iteration), paths)
	if err != nil {
		return err
	}
	if commit.SHA == "" {
		return fmt.Errorf("commit produced no SHA")
	}
	return nil
}

func qaIterationCap(cfg map[string]interface{}) (maxIter int, unlimited bool) {
	if s := cfgString(cfg, "maxIterations"); s == unlimitedIterations {
		return 0, true
	}
	return cfgInt(cfg, "maxIterations", 1), false
}

func terminal(k, maxIter int, unlimited bool) bool {
	return !unlimited && k >= maxIter
}
