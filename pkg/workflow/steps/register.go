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

import "github.com/tombee/taskforge/pkg/workflow"

// Register wires every built-in step type's factory into registry, bound
// to the shared process-wide collaborators in deps.
func Register(registry *workflow.Registry, deps *Deps) {
	registry.Register("persona_request", NewPersonaRequestStep(deps))
	registry.Register("planning_loop", NewPlanningLoopStep(deps))
	registry.Register("qa_iteration_loop", NewQAIterationLoopStep(deps))
	registry.Register("context_scan", NewContextScanStep(deps))
	registry.Register("diff_apply", NewDiffApplyStep(deps))
	registry.Register("git_operation", NewGitOperationStep(deps))
	registry.Register("task_update", NewTaskUpdateStep(deps))
	registry.Register("conditional", NewConditionalStep(deps))
	registry.Register("variable_set", NewVariableSetStep(deps))
	registry.Register("blocked_task_analysis", NewBlockedTaskAnalysisStep(deps))
	registry.Register("unblock_attempt", NewUnblockAttemptStep(deps))
}
