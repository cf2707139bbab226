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

	"github.com/tombee/taskforge/pkg/transport"
	"github.com/tombee/taskforge/pkg/workflow"
)

// fakePersonaWorker loop-replies to every request it sees for toPersona
// on testRequestStream, calling next(requestNumber) to compute each
// reply's result string. It stops when the test's context is cancelled.
func fakePersonaWorker(t *testing.T, tr *transport.InMemory, toPersona string, next func(n int) string) {
	t.Helper()
	ctx := context.Background()
	group := "fake-worker:" + toPersona
	require.NoError(t, tr.CreateGroup(ctx, testRequestStream, group, "0"))

	go func() {
		n := 0
		for {
			msgs, err := tr.ReadGroup(ctx, testRequestStream, group, "worker-1", 1, 3000)
			if err != nil {
				return
			}
			for _, m := range msgs {
				if m.Fields["toPersona"] != toPersona {
					continue
				}
				_ = tr.Ack(ctx, testRequestStream, group, m.ID)
				n++
				_, _ = tr.Append(ctx, "persona:replies:"+toPersona, map[string]string{
					"corrId": m.Fields["corrId"],
					"status": "done",
					"result": next(n),
				})
			}
		}
	}()
}

func TestPlanningLoopStep_PassesOnFirstEvaluation(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"

	fakePersonaWorker(t, tr, "planner", func(n int) string { return `{"plan":"do the thing"}` })
	fakePersonaWorker(t, tr, "plan-evaluator", func(n int) string { return `{"status":"pass"}` })

	step := NewPlanningLoopStep(deps)(&workflow.StepDefinition{Name: "plan-loop"})
	out, err := step.Execute(context.Background(), map[string]interface{}{
		"plannerPersona":   "planner",
		"evaluatorPersona": "plan-evaluator",
		"maxIterations":    5,
	}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, 1, out.Data["iterations"])
	require.Equal(t, true, out.Data["evaluation_passed"])
	require.Equal(t, false, out.Data["reached_max"])
}

func TestPlanningLoopStep_ReachesMaxIterationsWithoutPassing(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"

	fakePersonaWorker(t, tr, "planner", func(n int) string { return `{"plan":"revision"}` })
	fakePersonaWorker(t, tr, "plan-evaluator", func(n int) string { return `{"status":"fail"}` })

	step := NewPlanningLoopStep(deps)(&workflow.StepDefinition{Name: "plan-loop"})
	out, err := step.Execute(context.Background(), map[string]interface{}{
		"plannerPersona":   "planner",
		"evaluatorPersona": "plan-evaluator",
		"maxIterations":    2,
	}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, 2, out.Data["iterations"])
	require.Equal(t, false, out.Data["evaluation_passed"])
	require.Equal(t, true, out.Data["reached_max"])
}
