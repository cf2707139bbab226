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

import "github.com/tombee/taskforge/pkg/workflow"

// cfgString reads a string key, defaulting to "".
func cfgString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// cfgInt reads an int-ish key (int, int64, or float64 — YAML numbers
// decode as int via yaml.v3, but JSON-derived configs use float64),
// falling back to def.
func cfgInt(cfg map[string]interface{}, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// cfgBool reads a bool key, defaulting to def.
func cfgBool(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// cfgMap reads a nested map key, defaulting to an empty map.
func cfgMap(cfg map[string]interface{}, key string) map[string]interface{} {
	if v, ok := cfg[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return map[string]interface{}{}
}

// cfgStringSlice reads a []interface{} of strings, skipping non-string
// entries.
func cfgStringSlice(cfg map[string]interface{}, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// taskVariable returns the task map the coordinator seeds into workflow
// variables under "task", or an empty map when the run was started
// without one (e.g. a workflow executed outside the coordinator loop).
func taskVariable(wfCtx *workflow.WorkflowContext) map[string]interface{} {
	return cfgMap(wfCtx.Variables, "task")
}

// taskDependencyIDs reads the task's blocked_dependencies list, which is
// a []string when seeded by the coordinator and []interface{} when it
// came through YAML or JSON decoding.
func taskDependencyIDs(wfCtx *workflow.WorkflowContext) []string {
	v, ok := taskVariable(wfCtx)["blocked_dependencies"]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// mergeMaps shallow-merges overlay into base, overlay winning on
// conflicting keys, without mutating either input.
func mergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
