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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/workflow"
)

func TestVariableSetStep_WritesIntoContextVariables(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)
	wfCtx.Variables["existing"] = "kept"

	step := NewVariableSetStep(deps)(&workflow.StepDefinition{Name: "set"})
	out, err := step.Execute(context.Background(), map[string]interface{}{
		"values": map[string]interface{}{
			"stage":   "qa",
			"retries": 3,
		},
	}, wfCtx)

	require.NoError(t, err)
	require.Equal(t, "qa", wfCtx.Variables["stage"])
	require.Equal(t, 3, wfCtx.Variables["retries"])
	require.Equal(t, "kept", wfCtx.Variables["existing"])

	set, ok := out.Data["set"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "qa", set["stage"])
}

func TestVariableSetStep_EmptyValuesIsANoOp(t *testing.T) {
	deps, tr := newTestDeps(t)
	wfCtx := newTestWorkflowContext(tr)

	step := NewVariableSetStep(deps)(&workflow.StepDefinition{Name: "set"})
	_, err := step.Execute(context.Background(), map[string]interface{}{}, wfCtx)

	require.NoError(t, err)
	require.Empty(t, wfCtx.Variables)
}
