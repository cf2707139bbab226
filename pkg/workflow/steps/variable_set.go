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
)

// VariableSetStep writes entries from config.values into the workflow's
// shared variable map, available to later steps' placeholder expansion
// and guard conditions.
type VariableSetStep struct {
	deps *Deps
}

// NewVariableSetStep returns the step factory for "variable_set".
func NewVariableSetStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &VariableSetStep{deps: deps}
	}
}

func (s *VariableSetStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	values := cfgMap(cfg, "values")
	if wfCtx.Variables == nil {
		wfCtx.Variables = make(map[string]interface{})
	}
	for k, v := range values {
		wfCtx.Variables[k] = v
	}
	return workflow.StepOutput{Data: map[string]interface{}{"set": values}}, nil
}
