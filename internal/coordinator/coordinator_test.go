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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/dashboard"
	wferrors "github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/httpclient"
	"github.com/tombee/taskforge/pkg/transport"
	"github.com/tombee/taskforge/pkg/workflow"
	"github.com/tombee/taskforge/pkg/workflow/steps"
)

// fakeProject serves the dashboard endpoints Coordinator.Run touches,
// mutating its task list in place as status updates arrive so each loop
// iteration's re-fetch observes the live state, the way the real
// dashboard would.
type fakeProject struct {
	mu            sync.Mutex
	tasks         []dashboard.Task
	statusUpdates []string
}

func (p *fakeProject) handler(projectID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/projects/"+projectID+"/details":
			json.NewEncoder(w).Encode(dashboard.ProjectDetails{
				Project:    dashboard.Project{ID: projectID, Name: "demo"},
				RepoRemote: "git@example.com:org/demo.git",
			})

		case r.Method == http.MethodGet && r.URL.Path == "/v1/tasks":
			p.mu.Lock()
			out := append([]dashboard.Task(nil), p.tasks...)
			p.mu.Unlock()
			json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/status"):
			taskID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"), "/status")
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			p.mu.Lock()
			p.statusUpdates = append(p.statusUpdates, taskID+"="+body["status"])
			for i := range p.tasks {
				if p.tasks[i].ID == taskID {
					p.tasks[i].Status = body["status"]
				}
			}
			p.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)

		default:
			http.NotFound(w, r)
		}
	}
}

func (p *fakeProject) StatusUpdates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.statusUpdates...)
}

// markDoneWorkflow is the simplest complete workflow: one task_update
// step flipping the selected task to done, so the next loop iteration's
// re-fetch finds it no longer pending.
func markDoneWorkflow(name string) *workflow.Definition {
	return &workflow.Definition{
		Name: name,
		Steps: []workflow.StepDefinition{
			{
				Name: "mark-done",
				Type: "task_update",
				Config: map[string]interface{}{
					"taskId": "${task.id}",
					"status": "done",
				},
			},
		},
	}
}

func newTestCoordinator(t *testing.T, project *fakeProject, workflows map[string]*workflow.Definition) *Coordinator {
	t.Helper()

	srv := httptest.NewServer(project.handler("proj-1"))
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	client, err := dashboard.New(srv.URL, "test-token", cfg)
	require.NoError(t, err)

	tr, err := transport.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(tr.Close)

	registry := workflow.NewRegistry()
	steps.Register(registry, &steps.Deps{
		Dashboard:        client,
		RequestStream:    "persona:requests",
		GroupPrefix:      "test-replies",
		DefaultTimeoutMs: 2000,
	})

	repoBase := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repoBase, "proj-1"), 0o755))

	return &Coordinator{
		Dashboard:     client,
		Transport:     tr,
		Registry:      registry,
		Engine:        workflow.NewEngine(registry, nil),
		Workflows:     workflows,
		MaxIterations: 10,
		RepoBaseDir:   repoBase,
	}
}

func TestCoordinator_ProcessesTasksInPriorityOrder(t *testing.T) {
	project := &fakeProject{tasks: []dashboard.Task{
		{ID: "A", ProjectID: "proj-1", Name: "task a", Status: "open", PriorityScore: 100},
		{ID: "B", ProjectID: "proj-1", Name: "task b", Status: "blocked", PriorityScore: 100},
		{ID: "C", ProjectID: "proj-1", Name: "task c", Status: "in_review", PriorityScore: 50},
	}}

	// Every status routes to the same mark-done workflow here: the
	// ordering under test is the selection loop's, not the routing's.
	c := newTestCoordinator(t, project, map[string]*workflow.Definition{
		"project-loop":            markDoneWorkflow("project-loop"),
		"blocked-task-resolution": markDoneWorkflow("blocked-task-resolution"),
		"in-review-task-flow":     markDoneWorkflow("in-review-task-flow"),
	})

	result, err := c.Run(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Nil(t, result.Aborted)
	require.Equal(t, 3, result.TasksProcessed)

	// Equal scores: status bucket breaks the tie (blocked beats open),
	// then A's higher score beats C.
	require.Equal(t, []string{"B=done", "A=done", "C=done"}, project.StatusUpdates())
}

func TestCoordinator_NoPendingTasksSucceedsImmediately(t *testing.T) {
	project := &fakeProject{tasks: []dashboard.Task{
		{ID: "A", ProjectID: "proj-1", Status: "done"},
	}}
	c := newTestCoordinator(t, project, map[string]*workflow.Definition{
		"project-loop": markDoneWorkflow("project-loop"),
	})

	result, err := c.Run(context.Background(), "proj-1")
	require.NoError(t, err)
	require.Equal(t, 0, result.TasksProcessed)
	require.Empty(t, project.StatusUpdates())
}

func TestCoordinator_WorkflowFailureAbortsRun(t *testing.T) {
	project := &fakeProject{tasks: []dashboard.Task{
		{ID: "A", ProjectID: "proj-1", Status: "open", PriorityScore: 100},
		{ID: "B", ProjectID: "proj-1", Status: "open", PriorityScore: 50},
	}}

	failing := &workflow.Definition{
		Name: "project-loop",
		Steps: []workflow.StepDefinition{
			// task_update with no status config fails its validation.
			{Name: "broken", Type: "task_update", Config: map[string]interface{}{"taskId": "${task.id}"}},
		},
	}
	c := newTestCoordinator(t, project, map[string]*workflow.Definition{
		"project-loop": failing,
	})

	result, err := c.Run(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, result.Aborted)
	require.Equal(t, "A", result.Aborted.TaskID)
	require.Equal(t, "broken", result.Aborted.FailedStep)
	require.Equal(t, 0, result.TasksProcessed)

	// Abort is terminal for the run: B must never have been attempted,
	// and neither task may have reached done.
	require.Empty(t, project.StatusUpdates())
}

func TestCoordinator_MissingFallbackWorkflowIsFatal(t *testing.T) {
	project := &fakeProject{tasks: []dashboard.Task{
		{ID: "A", ProjectID: "proj-1", Status: "open"},
	}}
	c := newTestCoordinator(t, project, map[string]*workflow.Definition{})

	_, err := c.Run(context.Background(), "proj-1")

	var fatal *wferrors.FatalConfigError
	require.ErrorAs(t, err, &fatal)
}
