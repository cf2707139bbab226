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

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/taskforge/pkg/observability"
	"github.com/tombee/taskforge/pkg/workflow/expression"
)

// StepStatus is the terminal (or transitional) state of one step
// execution within a run.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepGatedOut StepStatus = "gated-out"
	StepRunning  StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed   StepStatus = "failed"
	StepTimedOut StepStatus = "timed-out"
)

// StepResult records what happened to one step during a Run.
type StepResult struct {
	Name   string
	Status StepStatus
	Output StepOutput
	Err    error
}

// RunResult is the outcome of one workflow execution: every step's
// terminal status, in the order they were attempted, and whether the
// workflow as a whole succeeded.
type RunResult struct {
	WorkflowName string
	Steps        []StepResult
	Succeeded    bool
}

// Engine walks a Definition's steps in dependency order, gating each on
// its dependencies' success and its own guard condition, materializing
// its Step implementation from the registry, bounding its execution by
// the workflow's effective timeout, and recording its output before
// moving to the next step. Steps execute strictly serially: the engine
// never starts a step before its predecessors have reached a terminal
// state.
type Engine struct {
	registry *Registry
	eval     *expression.Evaluator

	// Metrics is optional; when set, every step's terminal status is
	// reported against it. Nil (the zero value) disables recording.
	Metrics *observability.Metrics
}

// NewEngine creates an Engine bound to registry. eval may be nil, in
// which case the engine creates its own expression.Evaluator.
func NewEngine(registry *Registry, eval *expression.Evaluator) *Engine {
	if eval == nil {
		eval = expression.New()
	}
	return &Engine{registry: registry, eval: eval}
}

// Run executes def against wfCtx. The step order is computed fresh from
// def on every call via Sort, so a cyclic definition fails here rather
// than requiring callers to pre-validate.
func (e *Engine) Run(ctx context.Context, def *Definition, wfCtx *WorkflowContext) (*RunResult, error) {
	order, err := Sort(def)
	if err != nil {
		return nil, err
	}

	logger := wfCtx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := &RunResult{WorkflowName: def.Name, Succeeded: true}
	failed := make(map[string]bool, len(order))

	for i := range order {
		step := order[i]

		if e.anyDependencyFailed(&step, failed) {
			failed[step.Name] = true
			result.Succeeded = false
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Status: StepGatedOut})
			continue
		}

		ok, err := e.eval.Evaluate(step.Condition, wfCtx.ToExpressionContext())
		if err != nil {
			logger.Warn("step condition failed to evaluate, gating step out", "step", step.Name, "error", err)
			ok = false
		}
		if !ok && step.Condition != "" {
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Status: StepGatedOut})
			continue
		}

		sr := e.runOne(ctx, def, &step, wfCtx)
		result.Steps = append(result.Steps, sr)

		if e.Metrics != nil {
			e.Metrics.StepOutcomes.WithLabelValues(step.Type, string(sr.Status)).Inc()
		}

		if sr.Status != StepSucceeded {
			failed[step.Name] = true
			result.Succeeded = false
			e.runHandlers(ctx, def.OnStepFailure, wfCtx, logger)
		}
	}

	if !result.Succeeded {
		e.runHandlers(ctx, def.OnWorkflowFailure, wfCtx, logger)
	}

	return result, nil
}

func (e *Engine) anyDependencyFailed(step *StepDefinition, failed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

func (e *Engine) runOne(ctx context.Context, def *Definition, step *StepDefinition, wfCtx *WorkflowContext) StepResult {
	impl, err := e.registry.New(step)
	if err != nil {
		return StepResult{Name: step.Name, Status: StepFailed, Err: err}
	}

	resolved := ResolveConfigPlaceholders(step.Config, wfCtx)

	timeout := time.Duration(def.EffectiveTimeoutSeconds(step)) * time.Second
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out StepOutput
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := impl.Execute(stepCtx, resolved, wfCtx)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			wfCtx.SetOutput(step.Name, StepOutput{Error: o.err.Error()})
			return StepResult{Name: step.Name, Status: StepFailed, Output: o.out, Err: o.err}
		}
		recorded := narrowOutput(o.out, step.Outputs)
		wfCtx.SetOutput(step.Name, recorded)
		return StepResult{Name: step.Name, Status: StepSucceeded, Output: recorded}
	case <-stepCtx.Done():
		err := fmt.Errorf("step %s timed out after %s", step.Name, timeout)
		wfCtx.SetOutput(step.Name, StepOutput{Error: err.Error()})
		return StepResult{Name: step.Name, Status: StepTimedOut, Err: err}
	}
}

// narrowOutput applies the step's declared Outputs allow-list, if any:
// only the named keys of out.Data survive into the recorded StepOutput.
// With no Outputs declared, the step's full raw output is kept.
func narrowOutput(out StepOutput, keys []string) StepOutput {
	if len(keys) == 0 {
		return out
	}
	narrowed := StepOutput{Text: out.Text, Error: out.Error, Data: make(map[string]interface{}, len(keys))}
	for _, k := range keys {
		if v, ok := out.Data[k]; ok {
			narrowed.Data[k] = v
		}
	}
	return narrowed
}

// runHandlers executes a failure-handler chain. Handler failures are
// logged and otherwise ignored: a broken notification step must never
// mask the original failure that triggered it.
func (e *Engine) runHandlers(ctx context.Context, handlers []StepDefinition, wfCtx *WorkflowContext, logger *slog.Logger) {
	for i := range handlers {
		h := handlers[i]
		impl, err := e.registry.New(&h)
		if err != nil {
			logger.Warn("failure handler has unknown step type", "step", h.Name, "error", err)
			continue
		}
		resolved := ResolveConfigPlaceholders(h.Config, wfCtx)
		if _, err := impl.Execute(ctx, resolved, wfCtx); err != nil {
			logger.Warn("failure handler step failed", "step", h.Name, "error", err)
		}
	}
}
