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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/dashboard"
	"github.com/tombee/taskforge/pkg/workflow"
)

func TestBuildVariables_RequiresRepoRemote(t *testing.T) {
	_, err := BuildVariables(dashboard.Task{ID: "t1", ProjectID: "p1"}, &dashboard.ProjectDetails{}, "task", "medium")
	require.Error(t, err)
}

func TestBuildVariables_SetsSkipPullTaskAndRepoRemote(t *testing.T) {
	details := &dashboard.ProjectDetails{RepoRemote: "git@example.com:org/repo.git"}
	task := dashboard.Task{ID: "t1", Name: "Add widget"}

	vars, err := BuildVariables(task, details, "feature", "small")

	require.NoError(t, err)
	require.Equal(t, true, vars["SKIP_PULL_TASK"])
	require.Equal(t, details.RepoRemote, vars["repo_remote"])
	require.Equal(t, "feature", vars["taskType"])
	require.Equal(t, "small", vars["scope"])
}

func TestFeatureBranchName_ExplicitBranchLabelWins(t *testing.T) {
	task := dashboard.Task{Name: "ignored", Labels: []string{"branch:custom/name"}}
	milestone := map[string]interface{}{"slug": "m1", "branch": "milestone/other"}

	require.Equal(t, "custom/name", featureBranchName(task, milestone))
}

func TestFeatureBranchName_MilestoneBranchWinsOverSlug(t *testing.T) {
	task := dashboard.Task{Name: "ignored"}
	milestone := map[string]interface{}{"slug": "m1", "branch": "milestone/custom"}

	require.Equal(t, "milestone/custom", featureBranchName(task, milestone))
}

func TestFeatureBranchName_MilestoneSlugFallback(t *testing.T) {
	task := dashboard.Task{Name: "ignored"}
	milestone := map[string]interface{}{"slug": "q3-push"}

	require.Equal(t, "milestone/q3-push", featureBranchName(task, milestone))
}

func TestFeatureBranchName_TaskSlugFallback(t *testing.T) {
	task := dashboard.Task{Name: "Add a New Widget"}

	require.Equal(t, "feat/add-a-new-widget", featureBranchName(task, nil))
}

func TestFilterPullTask_RemovesStepAndRewritesDependsOn(t *testing.T) {
	def := &workflow.Definition{
		Name: "project-loop",
		Steps: []workflow.StepDefinition{
			{Name: "pull-task", Type: pullTaskStepType},
			{Name: "scan", Type: "context_scan", DependsOn: []string{"pull-task"}},
			{Name: "plan", Type: "persona_request", DependsOn: []string{"scan", "pull-task"}},
		},
	}

	filtered := FilterPullTask(def)

	require.Len(t, filtered.Steps, 2)
	require.Equal(t, "scan", filtered.Steps[0].Name)
	require.Empty(t, filtered.Steps[0].DependsOn)
	require.Equal(t, "plan", filtered.Steps[1].Name)
	require.Equal(t, []string{"scan"}, filtered.Steps[1].DependsOn)

	require.Len(t, def.Steps, 3, "original definition must not be mutated")
}
