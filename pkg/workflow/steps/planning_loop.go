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

	"github.com/tombee/taskforge/pkg/persona"
	"github.com/tombee/taskforge/pkg/workflow"
)

// defaultMaxPlanningIterations is §4.4's default maxIterations.
const defaultMaxPlanningIterations = 5

// revisionIterationThreshold is the iteration count at which the
// evaluator prompt context switches from "planning" to "revision" —
// leniency is meant to grow with attempts.
const revisionIterationThreshold = 3

// PlanningLoopStep drives a bounded planner/evaluator negotiation until
// the evaluator says pass or maxIterations is reached. It always
// succeeds: callers gate on evaluation_passed themselves.
type PlanningLoopStep struct {
	deps *Deps
}

// NewPlanningLoopStep returns the step factory for "planning_loop".
func NewPlanningLoopStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &PlanningLoopStep{deps: deps}
	}
}

func (s *PlanningLoopStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	maxIterations := cfgInt(cfg, "maxIterations", defaultMaxPlanningIterations)
	plannerPersona := cfgString(cfg, "plannerPersona")
	evaluatorPersona := cfgString(cfg, "evaluatorPersona")
	basePayload := cfgMap(cfg, "payload")
	timeoutMs := s.deps.timeoutMs(cfg, "timeoutMs")
	maxRetries := s.deps.maxRetries(cfg, "maxRetries")
	requestStream := s.deps.requestStream(cfg)
	evaluatorPrompts := cfgMap(cfg, "evaluatorPrompts")

	client := s.deps.personaClient(wfCtx)

	var planReply, evalReply *persona.Reply
	passed := false
	iterations := 0

	for k := 1; k <= maxIterations; k++ {
		iterations = k
		planPayload := mergeMaps(basePayload, map[string]interface{}{
			"iteration":     k,
			"planIteration": k,
			"is_revision":   k > 1,
			"repo":          wfCtx.RepoRemote,
			"branch":        wfCtx.Branch,
			"project_id":    wfCtx.ProjectID,
		})
		if evalReply != nil {
			planPayload["previous_evaluation"] = evalReply.Result
		}

		plan, err := client.RequestAndAwait(ctx, requestStream, persona.Request{
			WorkflowID: wfCtx.WorkflowID, ToPersona: plannerPersona, Step: cfgString(cfg, "planStep"),
			Intent: "plan", Payload: planPayload, Repo: wfCtx.RepoRemote, Branch: wfCtx.Branch, ProjectID: wfCtx.ProjectID,
		}, timeoutMs, maxRetries)
		if err != nil {
			s.deps.logger().Warn("planning_loop: planner request failed", "iteration", k, "error", err)
			if k == maxIterations {
				break
			}
			continue
		}
		planReply = plan

		promptContext := "planning"
		if k > revisionIterationThreshold {
			promptContext = "revision"
		}
		evalPayload := mergeMaps(basePayload, map[string]interface{}{
			"plan":       plan.Result,
			"iteration":  k,
			"repo":       wfCtx.RepoRemote,
			"branch":     wfCtx.Branch,
			"project_id": wfCtx.ProjectID,
		})
		if systemPrompt, ok := evaluatorPrompts[promptContext]; ok {
			evalPayload["system_prompt"] = systemPrompt
		}

		eval, err := client.RequestAndAwait(ctx, requestStream, persona.Request{
			WorkflowID: wfCtx.WorkflowID, ToPersona: evaluatorPersona, Step: cfgString(cfg, "evaluateStep"),
			Intent: "evaluate", Payload: evalPayload, Repo: wfCtx.RepoRemote, Branch: wfCtx.Branch, ProjectID: wfCtx.ProjectID,
		}, timeoutMs, maxRetries)
		if err != nil {
			s.deps.logger().Warn("planning_loop: evaluator request failed", "iteration", k, "error", err)
			if k == maxIterations {
				break
			}
			continue
		}
		evalReply = eval
		s.deps.logger().Debug("planning_loop: evaluation received",
			"iteration", k, "result", s.deps.masker().MaskJSON(eval.Result))

		if persona.IsSuccess(persona.NormalizeStatus(eval.Result)) {
			passed = true
			break
		}
	}

	out := map[string]interface{}{
		"iterations":        iterations,
		"evaluation_passed": passed,
		"reached_max":       !passed,
	}
	if planReply != nil {
		out["plan_result"] = planReply.Result
	}
	if evalReply != nil {
		out["evaluation_result"] = evalReply.Result
	}

	return workflow.StepOutput{Data: out}, nil
}
