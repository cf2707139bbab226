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

// Definition is a YAML-loaded workflow: immutable after Load, never
// mutated by the engine while running.
type Definition struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`

	// Trigger is the minimal expression evaluated by EvaluateTrigger
	// (equality + &&/|| over task_type and scope only). Empty matches
	// nothing; this workflow can still be selected explicitly by name.
	Trigger string `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	// RepoRequired declares that this workflow cannot run without a
	// resolved repoRoot/repoRemote in context.
	RepoRequired bool `yaml:"repo_required,omitempty" json:"repo_required,omitempty"`

	Inputs []InputDefinition `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps  []StepDefinition  `yaml:"steps" json:"steps"`
	Outputs []OutputDefinition `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Timeouts maps a step type name to its default timeout in seconds.
	// The special key "default_step" is the fallback for any type with no
	// entry. Resolution order per step: step.Timeout override, then
	// Timeouts[step.Type], then Timeouts["default_step"], then 5 minutes.
	Timeouts map[string]int `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`

	// OnStepFailure lists handler steps run, in order, whenever any step
	// fails. Handler failures are only warned, never themselves fatal.
	OnStepFailure []StepDefinition `yaml:"on_step_failure,omitempty" json:"on_step_failure,omitempty"`

	// OnWorkflowFailure lists handler steps run once, after the workflow
	// as a whole has been marked failed.
	OnWorkflowFailure []StepDefinition `yaml:"on_workflow_failure,omitempty" json:"on_workflow_failure,omitempty"`
}

// InputDefinition declares one expected workflow input parameter.
type InputDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// OutputDefinition declares one value the workflow exposes once it
// completes, typically a placeholder expression resolved against the
// final context.
type OutputDefinition struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// DefaultStepTimeoutSeconds is used when neither the step, its type, nor
// "default_step" has a configured timeout.
const DefaultStepTimeoutSeconds = 5 * 60

// StepDefinition is one node in the workflow's step DAG.
type StepDefinition struct {
	// Name is the step's identifier, unique within its workflow.
	Name string `yaml:"name" json:"name"`

	// Type is the step registry key (e.g. "persona_request", "diff_apply",
	// "planning_loop", "qa_iteration_loop").
	Type string `yaml:"type" json:"type"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// DependsOn names steps that must have completed successfully before
	// this one may run.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Condition is a guard expression evaluated (with variable/step-output
	// lookup) before the step runs; a false result gates the step out
	// without running it or its dependents being affected.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Config is the step's arbitrary, type-specific configuration
	// mapping. Placeholder strings of the form ${expr} anywhere within it
	// are resolved against the run's WorkflowContext before Execute.
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`

	// Outputs, if present, names which Config-resolved keys of the step's
	// raw result become its recorded StepOutput.Data; if absent, the
	// step's entire raw result ("data") is recorded instead.
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Timeout overrides the timeout for this step only, in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// EffectiveTimeoutSeconds resolves the timeout for a step given its
// workflow's timeout table, per the precedence in §4.3: step override,
// then per-type default, then "default_step", then 5 minutes.
func (d *Definition) EffectiveTimeoutSeconds(step *StepDefinition) int {
	if step.Timeout > 0 {
		return step.Timeout
	}
	if d.Timeouts != nil {
		if t, ok := d.Timeouts[step.Type]; ok && t > 0 {
			return t
		}
		if t, ok := d.Timeouts["default_step"]; ok && t > 0 {
			return t
		}
	}
	return DefaultStepTimeoutSeconds
}

// StepByName returns the step with the given name, or nil.
func (d *Definition) StepByName(name string) *StepDefinition {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}
