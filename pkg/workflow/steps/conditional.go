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

	"github.com/tombee/taskforge/pkg/workflow"
	"github.com/tombee/taskforge/pkg/workflow/expression"
)

// ConditionalStep evaluates an expression and records its boolean result,
// letting downstream steps branch on it via their own Condition field.
// It never fails on a false result — that is what distinguishes it from
// a step's built-in gating condition, which skips the step itself.
type ConditionalStep struct {
	deps *Deps
	eval *expression.Evaluator
}

// NewConditionalStep returns the step factory for "conditional".
func NewConditionalStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &ConditionalStep{deps: deps, eval: expression.New()}
	}
}

func (s *ConditionalStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	expr := cfgString(cfg, "expression")
	truthy, err := s.eval.Evaluate(expr, wfCtx.ToExpressionContext())
	if err != nil {
		return workflow.StepOutput{}, err
	}

	return workflow.StepOutput{Data: map[string]interface{}{
		"result": truthy,
	}}, nil
}
