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

// Package coordinator implements the task selection and dispatch loop
// described in §4.8: fetch, filter, sort, select one task, resolve its
// workflow, and run it to completion or abort.
package coordinator

import (
	"strings"

	"github.com/tombee/taskforge/pkg/dashboard"
)

// taskTypeKeywords maps a task type to the substrings (checked against
// the lower-cased name, description, and labels) that identify it. Order
// matters: the first match wins, so hotfix is checked ahead of the more
// general bugfix.
var taskTypeKeywords = []struct {
	taskType string
	keywords []string
}{
	{"hotfix", []string{"hotfix", "urgent", "critical", "p0"}},
	{"bugfix", []string{"bug", "bugfix", "defect", "regression"}},
	{"feature", []string{"feature", "enhancement"}},
	{"analysis", []string{"analysis", "analyze", "investigate", "research", "spike"}},
}

// ClassifyTaskType determines task type by keyword match on name,
// description, and labels, falling back to "task" when nothing matches.
func ClassifyTaskType(t dashboard.Task) string {
	haystack := strings.ToLower(t.Name + " " + t.Description + " " + strings.Join(t.Labels, " "))
	for _, entry := range taskTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.taskType
			}
		}
	}
	return "task"
}

// scopeLabelPrefix is the label convention a task uses to declare its
// own scope explicitly, e.g. "scope:large".
const scopeLabelPrefix = "scope:"

// ClassifyScope determines a task's scope (large/small/medium) from an
// explicit "scope:<size>" label when present, falling back to a rough
// heuristic on description length since the dashboard does not supply a
// dedicated scope field.
func ClassifyScope(t dashboard.Task) string {
	for _, label := range t.Labels {
		lower := strings.ToLower(label)
		if strings.HasPrefix(lower, scopeLabelPrefix) {
			switch strings.TrimPrefix(lower, scopeLabelPrefix) {
			case "large", "small", "medium":
				return strings.TrimPrefix(lower, scopeLabelPrefix)
			}
		}
	}

	switch {
	case len(t.Description) > 1200:
		return "large"
	case len(t.Description) < 200:
		return "small"
	default:
		return "medium"
	}
}
