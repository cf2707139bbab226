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
	"fmt"

	wferrors "github.com/tombee/taskforge/pkg/errors"
)

// Validate checks a loaded Definition for structural errors: a missing
// name, an empty step list, a step naming an unregistered type, a step
// depending on an undefined step, and a duplicate step name. It does not
// check for cycles; call Sort for that, which Validate does not call
// itself so callers can choose to validate and sort separately.
func Validate(def *Definition, registry *Registry) error {
	if def.Name == "" {
		return &wferrors.ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(def.Steps) == 0 {
		return &wferrors.ValidationError{Field: "steps", Message: fmt.Sprintf("workflow %s has no steps", def.Name)}
	}

	seen := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.Name == "" {
			return &wferrors.ValidationError{Field: "steps[].name", Message: fmt.Sprintf("workflow %s has a step with no name", def.Name)}
		}
		if seen[step.Name] {
			return &wferrors.ValidationError{Field: "steps[].name", Message: fmt.Sprintf("workflow %s declares step %q more than once", def.Name, step.Name)}
		}
		seen[step.Name] = true

		if registry != nil && !registry.Has(step.Type) {
			return &wferrors.UnknownStepTypeError{Step: step.Name, Type: step.Type}
		}
	}

	for _, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return &wferrors.ValidationError{
					Field:  "steps[].depends_on",
					Message: fmt.Sprintf("workflow %s step %q depends on undefined step %q", def.Name, step.Name, dep),
				}
			}
		}
	}

	return nil
}

// Sort returns the workflow's steps in a valid topological execution
// order (dependencies before dependents), or a *errors.CyclicDependencyError
// if the dependency graph contains a cycle. Ties among independently
// runnable steps are broken by declaration order, so the sort is
// deterministic given the same Definition.
func Sort(def *Definition) ([]StepDefinition, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	byName := make(map[string]*StepDefinition, len(def.Steps))
	for i := range def.Steps {
		byName[def.Steps[i].Name] = &def.Steps[i]
	}

	state := make(map[string]int, len(def.Steps))
	order := make([]StepDefinition, 0, len(def.Steps))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			cycle := append(append([]string{}, path...), name)
			return &wferrors.CyclicDependencyError{Workflow: def.Name, Cycle: cycle}
		}

		state[name] = visiting
		step := byName[name]
		for _, dep := range step.DependsOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, *step)
		return nil
	}

	for _, step := range def.Steps {
		if err := visit(step.Name, nil); err != nil {
			return nil, err
		}
	}

	return order, nil
}
