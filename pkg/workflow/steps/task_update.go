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

	"github.com/tombee/taskforge/pkg/dashboard"
	"github.com/tombee/taskforge/pkg/workflow"
)

// TaskUpdateStep pushes a status change (and optionally a follow-up task)
// to the dashboard. Repeated calls with the same status must be safe:
// the dashboard API is idempotent per (task, status), per §5.
type TaskUpdateStep struct {
	deps *Deps
}

// NewTaskUpdateStep returns the step factory for "task_update".
func NewTaskUpdateStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &TaskUpdateStep{deps: deps}
	}
}

func (s *TaskUpdateStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	if s.deps.Dashboard == nil {
		return workflow.StepOutput{}, fmt.Errorf("task_update: no dashboard client configured")
	}

	taskID := cfgString(cfg, "taskId")
	if taskID == "" {
		taskID = cfgString(cfg, "task_id")
	}
	status := cfgString(cfg, "status")
	if taskID == "" || status == "" {
		return workflow.StepOutput{}, fmt.Errorf("task_update: taskId and status are required")
	}

	if err := s.deps.Dashboard.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return workflow.StepOutput{}, fmt.Errorf("task_update: %w", err)
	}

	out := map[string]interface{}{"taskId": taskID, "status": status}

	if followUp := cfgMap(cfg, "createFollowUp"); len(followUp) > 0 {
		task := dashboard.Task{
			ProjectID:   wfCtx.ProjectID,
			Name:        cfgString(followUp, "name"),
			Description: cfgString(followUp, "description"),
			Status:      "open",
		}
		created, err := s.deps.Dashboard.CreateTask(ctx, task)
		if err != nil {
			return workflow.StepOutput{Data: out}, fmt.Errorf("task_update: creating follow-up task: %w", err)
		}
		out["followUpTaskId"] = created.ID
	}

	return workflow.StepOutput{Data: out}, nil
}
