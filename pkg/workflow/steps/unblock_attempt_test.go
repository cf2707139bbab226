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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/dashboard"
	"github.com/tombee/taskforge/pkg/workflow"
)

func TestUnblockAttemptStep_UnresolvedLeavesTaskBlocked(t *testing.T) {
	deps, tr := newTestDeps(t)
	client, state := newFakeDashboard(t, []dashboard.Task{{ID: "t-1", Status: "blocked"}})
	deps.Dashboard = client

	wfCtx := newTestWorkflowContext(tr)
	wfCtx.Variables["task"] = map[string]interface{}{"id": "t-1"}
	wfCtx.SetOutput("blocked-task-analysis", workflow.StepOutput{Data: map[string]interface{}{
		"allResolved": false,
	}})

	step := NewUnblockAttemptStep(deps)(&workflow.StepDefinition{Name: "unblock"})
	out, err := step.Execute(context.Background(), map[string]interface{}{}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, false, out.Data["unblocked"])
	require.Equal(t, 1, out.Data["attempts"])
	require.Empty(t, state.StatusUpdates(), "an unresolved blocked task must not trigger a status update")
}

func TestUnblockAttemptStep_ResolvedReopensTask(t *testing.T) {
	deps, tr := newTestDeps(t)
	client, state := newFakeDashboard(t, []dashboard.Task{{ID: "t-1", Status: "blocked"}})
	deps.Dashboard = client

	wfCtx := newTestWorkflowContext(tr)
	wfCtx.Variables["task"] = map[string]interface{}{"id": "t-1"}
	wfCtx.SetOutput("blocked-task-analysis", workflow.StepOutput{Data: map[string]interface{}{
		"allResolved": true,
	}})

	step := NewUnblockAttemptStep(deps)(&workflow.StepDefinition{Name: "unblock"})
	out, err := step.Execute(context.Background(), map[string]interface{}{}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, true, out.Data["unblocked"])
	require.Equal(t, "t-1", out.Data["taskId"])
	require.Equal(t, []string{"t-1=open"}, state.StatusUpdates())
}

func TestUnblockAttemptStep_AttemptCounterSeedsFromTask(t *testing.T) {
	deps, tr := newTestDeps(t)
	client, _ := newFakeDashboard(t, nil)
	deps.Dashboard = client

	wfCtx := newTestWorkflowContext(tr)
	wfCtx.Variables["task"] = map[string]interface{}{
		"id":                    "t-1",
		"blocked_attempt_count": 2,
	}
	wfCtx.SetOutput("blocked-task-analysis", workflow.StepOutput{Data: map[string]interface{}{
		"allResolved": false,
	}})

	step := NewUnblockAttemptStep(deps)(&workflow.StepDefinition{Name: "unblock"})
	out, err := step.Execute(context.Background(), map[string]interface{}{}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, 3, out.Data["attempts"])
	require.Equal(t, 3, wfCtx.Variables["blocked_attempt_count"])
}

func TestUnblockAttemptStep_MissingAnalysisOutputFails(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)

	step := NewUnblockAttemptStep(deps)(&workflow.StepDefinition{Name: "unblock"})
	_, err := step.Execute(context.Background(), map[string]interface{}{}, wfCtx)
	require.Error(t, err)
}
