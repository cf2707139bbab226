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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/taskforge/pkg/dashboard"
	wferrors "github.com/tombee/taskforge/pkg/errors"
	"github.com/tombee/taskforge/pkg/gitops"
	"github.com/tombee/taskforge/pkg/observability"
	"github.com/tombee/taskforge/pkg/transport"
	"github.com/tombee/taskforge/pkg/workflow"
)

// AbortInfo records why a coordinator run stopped processing a project
// before it ran out of pending tasks, per the abort semantics in §4.8:
// any task-level workflow failure is terminal for the current run, never
// a "skip and continue".
type AbortInfo struct {
	TaskID         string
	WorkflowName   string
	FailedStep     string
	Error          string
	CompletedSteps []string

	// Reason is the stable abort token (dirty_working_tree, push_failed,
	// no_op_implementation) when the failing step's error carries one;
	// empty for unclassified failures.
	Reason string
}

// RunResult is the outcome of one Coordinator.Run call.
type RunResult struct {
	// TasksProcessed counts tasks whose workflow ran to success.
	TasksProcessed int

	// Aborted is set when a task's workflow failed and the run stopped
	// early; nil on a run that exhausted pending tasks or maxIterations.
	Aborted *AbortInfo
}

// Coordinator drives the per-project task selection and dispatch loop
// described in §4.8.
type Coordinator struct {
	Dashboard     *dashboard.Client
	Transport     transport.Transport
	Registry      *workflow.Registry
	Engine        *workflow.Engine
	Workflows     map[string]*workflow.Definition
	MaxIterations int
	Logger        *slog.Logger

	// RepoBaseDir is the parent directory under which each project's
	// repository is checked out, at RepoBaseDir/{projectID}. A project
	// whose directory does not exist yet is cloned from repo_remote on
	// first use.
	RepoBaseDir string

	// Metrics is optional; when nil, metrics recording is skipped.
	Metrics *observability.Metrics
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run executes the selection loop for projectID: fetch, filter, sort,
// select one task, resolve its workflow, run it, and repeat — up to
// MaxIterations or until no pending tasks remain or a workflow fails.
func (c *Coordinator) Run(ctx context.Context, projectID string) (*RunResult, error) {
	result := &RunResult{}

	details, err := c.Dashboard.GetProjectDetails(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: fetching project %s details: %w", projectID, err)
	}
	if details.RepoRemote == "" {
		return nil, &wferrors.FatalConfigError{Reason: fmt.Sprintf("project %s has no repo_remote configured", projectID)}
	}

	repoRoot, err := c.ensureRepo(ctx, projectID, details.RepoRemote)
	if err != nil {
		return nil, err
	}

	for iteration := 0; iteration < c.MaxIterations; iteration++ {
		if c.Metrics != nil {
			c.Metrics.CoordinatorIterations.Inc()
		}

		tasks, err := c.Dashboard.ListTasks(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("coordinator: listing tasks for project %s: %w", projectID, err)
		}

		pending := PendingTasks(tasks)
		if len(pending) == 0 {
			return result, nil
		}
		task := pending[0]

		taskType := ClassifyTaskType(task)
		scope := ClassifyScope(task)

		def, err := SelectWorkflow(task, taskType, scope, c.Workflows)
		if err != nil {
			return nil, err
		}

		vars, err := BuildVariables(task, details, taskType, scope)
		if err != nil {
			return nil, err
		}

		runDef := FilterPullTask(def)

		logger := c.logger().With("taskId", task.ID, "workflow", runDef.Name)
		wfCtx := workflow.NewWorkflowContext(runID(projectID, task.ID), projectID, vars, c.Transport, logger)
		wfCtx.RepoRemote = details.RepoRemote
		wfCtx.RepoRoot = repoRoot
		if branch, ok := vars["featureBranchName"].(string); ok {
			wfCtx.Branch = branch
		}

		spanCtx, span := observability.Tracer().Start(ctx, "coordinator.run_task",
			trace.WithAttributes(
				attribute.String("taskforge.task_id", task.ID),
				attribute.String("taskforge.workflow", runDef.Name),
			),
		)
		start := time.Now()
		runResult, err := c.Engine.Run(spanCtx, runDef, wfCtx)
		duration := time.Since(start)

		if c.Metrics != nil {
			c.Metrics.WorkflowDuration.WithLabelValues(runDef.Name).Observe(duration.Seconds())
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, fmt.Errorf("coordinator: running workflow %s for task %s: %w", runDef.Name, task.ID, err)
		}

		if !runResult.Succeeded {
			abort := abortInfoFrom(task.ID, runResult)
			span.SetStatus(codes.Error, abort.Error)
			span.End()
			logger.Error("workflow failed, aborting coordinator run", "failedStep", abort.FailedStep, "reason", abort.Reason, "error", abort.Error)
			if c.Metrics != nil {
				c.Metrics.CoordinatorTaskOutcome.WithLabelValues("aborted").Inc()
			}
			result.Aborted = abort
			return result, nil
		}

		span.SetStatus(codes.Ok, "")
		span.End()
		if c.Metrics != nil {
			c.Metrics.CoordinatorTaskOutcome.WithLabelValues("succeeded").Inc()
		}
		result.TasksProcessed++
	}

	return result, &wferrors.FatalConfigError{Reason: fmt.Sprintf("coordinator reached maxIterations (%d) for project %s without exhausting pending tasks", c.MaxIterations, projectID)}
}

// ensureRepo returns the project's checked-out repository root, cloning
// it from remote first if RepoBaseDir/{projectID} does not exist yet.
func (c *Coordinator) ensureRepo(ctx context.Context, projectID, remote string) (string, error) {
	repoRoot := filepath.Join(c.RepoBaseDir, projectID)

	if _, err := os.Stat(repoRoot); err == nil {
		return repoRoot, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("coordinator: checking repo root %s: %w", repoRoot, err)
	}

	git := gitops.New(repoRoot, c.logger())
	if err := git.Clone(ctx, remote); err != nil {
		return "", fmt.Errorf("coordinator: cloning %s: %w", remote, err)
	}
	return repoRoot, nil
}

func runID(projectID, taskID string) string {
	return fmt.Sprintf("%s/%s", projectID, taskID)
}

// abortInfoFrom extracts the first failed (or timed-out) step from a
// workflow run to populate the coordinator's abort metadata.
func abortInfoFrom(taskID string, run *workflow.RunResult) *AbortInfo {
	info := &AbortInfo{TaskID: taskID, WorkflowName: run.WorkflowName}
	for _, sr := range run.Steps {
		switch sr.Status {
		case workflow.StepSucceeded:
			info.CompletedSteps = append(info.CompletedSteps, sr.Name)
		case workflow.StepFailed, workflow.StepTimedOut:
			if info.FailedStep == "" {
				info.FailedStep = sr.Name
				if sr.Err != nil {
					info.Error = sr.Err.Error()
					if reason, ok := wferrors.AbortReasonOf(sr.Err); ok {
						info.Reason = reason
					}
				}
			}
		}
	}
	return info
}
