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
	"regexp"
	"strings"
)

// placeholderPattern matches ${expr} placeholders in step configuration
// strings.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolvePlaceholders expands every ${expr} occurrence in s against ctx.
// Lookup order: a small set of reserved names (repoRoot, repoRemote,
// branch, workflowId, projectId), then ctx.Variables[expr], then a dotted path
// first through a variable map and finally through a step-output
// stepName.key.key. An unresolved placeholder is left
// literal in the output (callers should log a warning when that happens;
// ResolvePlaceholders reports which ones via the returned slice).
func ResolvePlaceholders(s string, ctx *WorkflowContext) (string, []string) {
	var unresolved []string

	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-1])
		value, ok := resolvePlaceholderExpr(expr, ctx)
		if !ok {
			unresolved = append(unresolved, expr)
			return match
		}
		return stringify(value)
	})

	return result, unresolved
}

// ResolveConfigPlaceholders walks a step's Config map recursively,
// resolving ${expr} placeholders in every string value. Non-string values
// pass through unchanged.
func ResolveConfigPlaceholders(cfg map[string]interface{}, ctx *WorkflowContext) map[string]interface{} {
	return resolveValuePlaceholders(cfg, ctx).(map[string]interface{})
}

func resolveValuePlaceholders(v interface{}, ctx *WorkflowContext) interface{} {
	switch t := v.(type) {
	case string:
		resolved, _ := ResolvePlaceholders(t, ctx)
		return resolved
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = resolveValuePlaceholders(vv, ctx)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = resolveValuePlaceholders(vv, ctx)
		}
		return out
	default:
		return v
	}
}

func resolvePlaceholderExpr(expr string, ctx *WorkflowContext) (interface{}, bool) {
	switch expr {
	case "repoRoot":
		return ctx.RepoRoot, true
	case "repoRemote":
		return ctx.RepoRemote, true
	case "branch":
		return ctx.Branch, true
	case "workflowId":
		return ctx.WorkflowID, true
	case "projectId":
		return ctx.ProjectID, true
	}

	if v, ok := ctx.Variables[expr]; ok {
		return v, true
	}

	parts := strings.Split(expr, ".")
	if len(parts) < 2 {
		return nil, false
	}

	// Variables win over step outputs for dotted paths too: a task map
	// seeded by the coordinator resolves ${task.id} even when a step named
	// "task" later records an output.
	if root, ok := ctx.Variables[parts[0]]; ok {
		if v, ok := walkPath(root, parts[1:]); ok {
			return v, true
		}
	}

	out, ok := ctx.StepOutputs[parts[0]]
	if !ok {
		return nil, false
	}
	return walkPath(out.ToMap(), parts[1:])
}

func walkPath(root interface{}, keys []string) (interface{}, bool) {
	current := root
	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
