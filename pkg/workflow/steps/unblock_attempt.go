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

	"github.com/tombee/taskforge/pkg/workflow"
)

// UnblockAttemptStep acts on a prior BlockedTaskAnalysisStep's verdict: if
// every dependency resolved, it flips the task back to "open" on the
// dashboard; otherwise it records another attempt and leaves the task
// blocked without touching the dashboard (per S6, an unresolved blocked
// task must not produce a status-update call).
type UnblockAttemptStep struct {
	deps *Deps
}

// NewUnblockAttemptStep returns the step factory for "unblock_attempt".
func NewUnblockAttemptStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &UnblockAttemptStep{deps: deps}
	}
}

func (s *UnblockAttemptStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	analysisStep := cfgString(cfg, "analysisFrom")
	if analysisStep == "" {
		analysisStep = "blocked-task-analysis"
	}

	analysis, ok := wfCtx.StepOutputs[analysisStep]
	if !ok {
		return workflow.StepOutput{}, fmt.Errorf("unblock_attempt: no output recorded for step %q", analysisStep)
	}
	allResolved, _ := analysis.Data["allResolved"].(bool)

	// Seed from the task's recorded counter on the first attempt of this
	// run; afterwards the run-local variable accumulates.
	prior := cfgInt(wfCtx.Variables, "blocked_attempt_count", cfgInt(taskVariable(wfCtx), "blocked_attempt_count", 0))
	attempts := prior + 1
	wfCtx.Variables["blocked_attempt_count"] = attempts

	if !allResolved {
		return workflow.StepOutput{Data: map[string]interface{}{
			"unblocked": false,
			"attempts":  attempts,
		}}, nil
	}

	if s.deps.Dashboard == nil {
		return workflow.StepOutput{}, fmt.Errorf("unblock_attempt: no dashboard client configured")
	}

	taskID := cfgString(cfg, "taskId")
	if taskID == "" {
		taskID = cfgString(taskVariable(wfCtx), "id")
	}
	if taskID == "" {
		return workflow.StepOutput{}, fmt.Errorf("unblock_attempt: no taskId available to unblock")
	}

	if err := s.deps.Dashboard.UpdateTaskStatus(ctx, taskID, "open"); err != nil {
		return workflow.StepOutput{}, fmt.Errorf("unblock_attempt: %w", err)
	}

	return workflow.StepOutput{Data: map[string]interface{}{
		"unblocked": true,
		"attempts":  attempts,
		"taskId":    taskID,
	}}, nil
}
