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

// Package workflow provides the declarative, YAML-driven DAG engine: a
// WorkflowDefinition loaded once at startup, a per-run WorkflowContext, and
// the Engine that walks a run's steps in dependency order.
package workflow

import (
	"fmt"
	"log/slog"

	"github.com/tombee/taskforge/pkg/transport"
)

// ErrKeyNotFound is returned when a requested key does not exist in the
// context. Security: never includes the actual value, to avoid leaking a
// persona payload or task field into logs via an error string.
type ErrKeyNotFound struct {
	Key string
}

func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// StepOutput is the structured result recorded for a completed step.
// Text/Data mirror what the step itself declared as "outputs" (preferred)
// or "data" (fallback); Error is set by the engine when a step's execution
// failed or timed out. Failure-handler steps record no output.
type StepOutput struct {
	Text  string                 `json:"text,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Error string                 `json:"error,omitempty"`
}

// ToMap flattens a StepOutput into an untyped map for placeholder and
// condition-expression resolution.
func (s StepOutput) ToMap() map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range s.Data {
		result[k] = v
	}
	if s.Text != "" {
		result["text"] = s.Text
	}
	if s.Error != "" {
		result["error"] = s.Error
	}
	return result
}

// WorkflowContext holds all per-run mutable state: a fresh UUID workflowId,
// the project and repository the run operates on, variables, and step
// outputs. Methods are safe for concurrent reads but the engine itself
// never mutates concurrently (§5: steps execute strictly serially).
type WorkflowContext struct {
	WorkflowID string
	ProjectID  string
	RepoRoot   string
	RepoRemote string
	Branch     string

	Variables   map[string]interface{}
	StepOutputs map[string]StepOutput

	Transport transport.Transport
	Logger    *slog.Logger
}

// NewWorkflowContext creates a context seeded with the given variables.
func NewWorkflowContext(workflowID, projectID string, vars map[string]interface{}, tr transport.Transport, logger *slog.Logger) *WorkflowContext {
	if vars == nil {
		vars = make(map[string]interface{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowContext{
		WorkflowID:  workflowID,
		ProjectID:   projectID,
		Variables:   vars,
		StepOutputs: make(map[string]StepOutput),
		Transport:   tr,
		Logger:      logger,
	}
}

// SetOutput records a completed step's output. Invariant: StepOutputs[s]
// is set iff step s completed (success or failure) and produced output.
func (c *WorkflowContext) SetOutput(stepName string, out StepOutput) {
	c.StepOutputs[stepName] = out
}

// HasOutput reports whether a step has recorded an output yet.
func (c *WorkflowContext) HasOutput(stepName string) bool {
	_, ok := c.StepOutputs[stepName]
	return ok
}

// ToExpressionContext flattens the context into the untyped map shape the
// step-condition expression language evaluates against.
func (c *WorkflowContext) ToExpressionContext() map[string]interface{} {
	steps := make(map[string]interface{}, len(c.StepOutputs))
	for name, out := range c.StepOutputs {
		steps[name] = out.ToMap()
	}
	return map[string]interface{}{
		"variables":  c.Variables,
		"steps":      steps,
		"repoRoot":   c.RepoRoot,
		"branch":     c.Branch,
		"workflowId": c.WorkflowID,
		"projectId":  c.ProjectID,
	}
}
