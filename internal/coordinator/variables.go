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
	"regexp"
	"strings"

	"github.com/tombee/taskforge/pkg/dashboard"
	wferrors "github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/workflow"
)

const pullTaskStepType = "pull-task"

// BuildVariables assembles the initial workflow context variables for one
// task run, per §4.8 step 7: the full task copy, milestone fields,
// computed featureBranchName, the required repo_remote, and
// SKIP_PULL_TASK=true (the coordinator has already fetched the task, so
// the workflow's own pull-task step, if it still has one, must not
// repeat that fetch).
func BuildVariables(task dashboard.Task, details *dashboard.ProjectDetails, taskType, scope string) (map[string]interface{}, error) {
	if details == nil || details.RepoRemote == "" {
		return nil, &wferrors.FatalConfigError{Reason: fmt.Sprintf("project %s has no repo_remote configured", task.ProjectID)}
	}

	vars := map[string]interface{}{
		"task":              taskToMap(task),
		"taskType":          taskType,
		"scope":             scope,
		"repo_remote":       details.RepoRemote,
		"featureBranchName": featureBranchName(task, details.Milestone),
		"SKIP_PULL_TASK":    true,
	}

	for k, v := range details.Milestone {
		vars["milestone_"+k] = v
	}

	return vars, nil
}

func taskToMap(t dashboard.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":                    t.ID,
		"project_id":            t.ProjectID,
		"name":                  t.Name,
		"description":           t.Description,
		"labels":                t.Labels,
		"status":                t.Status,
		"priority_score":        t.PriorityScore,
		"order":                 t.Order,
		"slug":                  t.Slug,
		"milestone_id":          t.MilestoneID,
		"blocked_attempt_count": t.BlockedAttemptCount,
		"blocked_dependencies":  t.BlockedDependencies,
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases s and collapses runs of non-alphanumeric characters
// into a single hyphen, trimming any leading/trailing hyphen.
func slugify(s string) string {
	lower := strings.ToLower(s)
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// featureBranchName resolves the branch a task's workflow run commits to,
// per the naming rule in §3 (Milestone): an explicit "branch" field on
// the task or milestone wins outright; otherwise a milestone yields
// "milestone/{slug}" and a bare task yields "feat/{task_slug}". Labels are
// the task-level override point since dashboard.Task carries no
// dedicated branch field — a "branch:<name>" label is read the same way
// ClassifyScope reads "scope:<size>".
func featureBranchName(task dashboard.Task, milestone map[string]interface{}) string {
	const branchLabelPrefix = "branch:"
	for _, label := range task.Labels {
		if strings.HasPrefix(strings.ToLower(label), branchLabelPrefix) {
			if name := label[len(branchLabelPrefix):]; name != "" {
				return name
			}
		}
	}

	if milestone != nil {
		if branch, ok := milestone["branch"].(string); ok && branch != "" {
			return branch
		}
		if slug, ok := milestone["slug"].(string); ok && slug != "" {
			return "milestone/" + slug
		}
	}

	taskSlug := task.Slug
	if taskSlug == "" {
		taskSlug = slugify(task.Name)
	}
	if taskSlug == "" {
		taskSlug = task.ID
	}
	return "feat/" + taskSlug
}

// FilterPullTask returns a shallow copy of def with any step of type
// "pull-task" removed and every remaining step's depends_on list
// rewritten to drop any "pull-task" entry (dependencies are matched by
// that literal name, not by the removed step's own name), since the
// coordinator has already
// fetched and selected the task before the workflow starts (§4.8 step 7).
// The original Definition (as loaded and validated by LoadDirectory) is
// left untouched so the filtered copy can be discarded after one run.
func FilterPullTask(def *workflow.Definition) *workflow.Definition {
	out := *def
	out.Steps = make([]workflow.StepDefinition, 0, len(def.Steps))
	for _, step := range def.Steps {
		if step.Type == pullTaskStepType {
			continue
		}
		step.DependsOn = removeDep(step.DependsOn, pullTaskStepType)
		out.Steps = append(out.Steps, step)
	}
	return &out
}

func removeDep(deps []string, name string) []string {
	if len(deps) == 0 {
		return deps
	}
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if d != name {
			out = append(out, d)
		}
	}
	return out
}
