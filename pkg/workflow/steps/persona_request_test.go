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

const testRequestStream = "persona:requests"

// newTestDeps returns Deps wired to a fresh in-memory transport, along
// with the transport itself so tests can act as a fake persona worker.
func newTestDeps(t *testing.T) (*Deps, *transport.InMemory) {
	t.Helper()
	tr, err := transport.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	return &Deps{
		RequestStream:     testRequestStream,
		GroupPrefix:       "test-replies",
		DefaultTimeoutMs:  2000,
		DefaultMaxRetries: 0,
	}, tr
}

func newTestWorkflowContext(tr *transport.InMemory) *workflow.WorkflowContext {
	return workflow.NewWorkflowContext("wf-1", "proj-1", nil, tr, nil)
}

// replyOnceTo reads one request off testRequestStream for toPersona and
// publishes result back on its reply stream, echoing the corrId.
func replyOnceTo(t *testing.T, tr *transport.InMemory, toPersona, result string) {
	t.Helper()
	ctx := context.Background()
	group := "fake-worker:" + toPersona
	require.NoError(t, tr.CreateGroup(ctx, testRequestStream, group, "0"))

	go func() {
		msgs, err := tr.ReadGroup(ctx, testRequestStream, group, "worker-1", 1, 2000)
		if err != nil || len(msgs) == 0 {
			return
		}
		m := msgs[0]
		if m.Fields["toPersona"] != toPersona {
			return
		}
		_ = tr.Ack(ctx, testRequestStream, group, m.ID)
		_, _ = tr.Append(ctx, "persona:replies:"+toPersona, map[string]string{
			"corrId": m.Fields["corrId"],
			"status": "done",
			"result": result,
		})
	}()
}

func TestPersonaRequestStep_ReturnsNormalizedStatus(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"

	replyOnceTo(t, tr, "planner", `{"status":"pass"}`)

	step := NewPersonaRequestStep(deps)(&workflow.StepDefinition{Name: "plan"})
	out, err := step.Execute(context.Background(), map[string]interface{}{
		"persona": "planner",
		"step":    "plan",
		"intent":  "plan",
	}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, true, out.Data["passed"])
	require.Equal(t, "pass", out.Data["status"])
}

func TestPersonaRequestStep_TimesOutWithoutReply(t *testing.T) {
	deps, tr := newTestDeps(t)
	deps.DefaultTimeoutMs = 100
	wfCtx := newTestWorkflowContext(tr)
	wfCtx.RepoRemote = "git@example.com:org/repo.git"

	step := NewPersonaRequestStep(deps)(&workflow.StepDefinition{Name: "plan"})
	_, err := step.Execute(context.Background(), map[string]interface{}{
		"persona": "planner",
	}, wfCtx)

	require.Error(t, err)
}
