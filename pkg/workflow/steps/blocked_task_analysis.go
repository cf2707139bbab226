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

// BlockedTaskAnalysisStep checks whether every dependency of a blocked
// task has reached status "done". It never mutates the dashboard: it
// only reports allResolved so a following UnblockAttemptStep can decide
// what to do (see S6).
type BlockedTaskAnalysisStep struct {
	deps *Deps
}

// NewBlockedTaskAnalysisStep returns the step factory for "blocked_task_analysis".
func NewBlockedTaskAnalysisStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &BlockedTaskAnalysisStep{deps: deps}
	}
}

func (s *BlockedTaskAnalysisStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	if s.deps.Dashboard == nil {
		return workflow.StepOutput{}, fmt.Errorf("blocked_task_analysis: no dashboard client configured")
	}

	dependencyIDs := cfgStringSlice(cfg, "dependencyIds")
	if len(dependencyIDs) == 0 {
		dependencyIDs = taskDependencyIDs(wfCtx)
	}

	if len(dependencyIDs) == 0 {
		return workflow.StepOutput{Data: map[string]interface{}{
			"allResolved":   true,
			"unresolvedIds": []string{},
		}}, nil
	}

	tasks, err := s.deps.Dashboard.ListTasks(ctx, wfCtx.ProjectID)
	if err != nil {
		return workflow.StepOutput{}, fmt.Errorf("blocked_task_analysis: %w", err)
	}

	statusByID := make(map[string]string, len(tasks))
	for _, t := range tasks {
		statusByID[t.ID] = t.Status
	}

	var unresolved []string
	for _, id := range dependencyIDs {
		if statusByID[id] != "done" {
			unresolved = append(unresolved, id)
		}
	}
	if unresolved == nil {
		unresolved = []string{}
	}

	return workflow.StepOutput{Data: map[string]interface{}{
		"allResolved":   len(unresolved) == 0,
		"unresolvedIds": unresolved,
		"dependencyIds": dependencyIDs,
	}}, nil
}
