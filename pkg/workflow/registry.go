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
	"sync"
)

// Step is the uniform execution contract every step type implements.
// Execute receives the step's already-placeholder-resolved configuration
// and the run's context, and returns either the outputs to record, or an
// error that fails the step.
type Step interface {
	Execute(ctx context.Context, config map[string]interface{}, wfCtx *WorkflowContext) (StepOutput, error)
}

// StepFactory constructs a Step for one StepDefinition. Most step types
// are stateless and ignore the definition; composite steps (loops) use it
// to resolve nested configuration like max iterations.
type StepFactory func(def *StepDefinition) Step

// Registry is the pluggable set of known step types, keyed by
// StepDefinition.Type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]StepFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StepFactory)}
}

// Register adds a step type. Re-registering the same type overwrites it,
// which lets tests substitute fakes for specific types.
func (r *Registry) Register(stepType string, factory StepFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[stepType] = factory
}

// New instantiates the Step for def.Type, or an error if unregistered.
func (r *Registry) New(def *StepDefinition) (Step, error) {
	r.mu.RLock()
	factory, ok := r.factories[def.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown step type %q", def.Type)
	}
	return factory(def), nil
}

// Has reports whether stepType is registered, used by Validate to reject
// workflow definitions referencing unknown step types at load time.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[stepType]
	return ok
}
