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

package coordinator

import (
	"fmt"
	"sort"

	"github.com/tombee/taskforge/pkg/dashboard"
	wferrors "github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/workflow"
)

const (
	blockedTaskResolutionWorkflow = "blocked-task-resolution"
	inReviewTaskFlowWorkflow      = "in-review-task-flow"
	fallbackWorkflow              = "project-loop"
)

// PendingTasks filters out tasks with status "done" and sorts the rest
// by the §4.8 step 2 ordering: priority_score DESC, status bucket ASC,
// order ASC.
func PendingTasks(tasks []dashboard.Task) []dashboard.Task {
	pending := make([]dashboard.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status != "done" {
			pending = append(pending, t)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		ba, bb := dashboard.StatusBucket(a.Status), dashboard.StatusBucket(b.Status)
		if ba != bb {
			return ba < bb
		}
		return a.Order < b.Order
	})

	return pending
}

// SelectWorkflow resolves which workflow definition runs a task, per the
// precedence in §4.8 step 6: blocked status, then in_review status, then
// the first workflow whose trigger condition matches, then the named
// fallback. Legacy-compatible workflow selection is explicitly dropped —
// see design notes on legacy compatibility paths.
func SelectWorkflow(task dashboard.Task, taskType, scope string, defs map[string]*workflow.Definition) (*workflow.Definition, error) {
	if task.Status == "blocked" {
		if def, ok := defs[blockedTaskResolutionWorkflow]; ok {
			return def, nil
		}
	}
	if task.Status == "in_review" {
		if def, ok := defs[inReviewTaskFlowWorkflow]; ok {
			return def, nil
		}
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := defs[name]
		if workflow.EvaluateTrigger(def.Trigger, taskType, scope) {
			return def, nil
		}
	}

	if def, ok := defs[fallbackWorkflow]; ok {
		return def, nil
	}

	return nil, &wferrors.FatalConfigError{Reason: fmt.Sprintf("no workflow matched task type %q / scope %q and no fallback workflow %q is defined", taskType, scope, fallbackWorkflow)}
}
