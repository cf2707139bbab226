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

package persona

import (
	"encoding/json"
	"strings"

	"github.com/itchyny/gojq"
)

// statusQueries are tried in order against the parsed result payload; the
// first one to produce a non-empty match wins. This accommodates the
// several reply shapes personas are observed to emit: a bare status
// field, an {approved: bool}, or a {result: "approved"|"rejected"}.
var statusQueries = compileQueries(
	".status",
	".approved",
	".result",
)

func compileQueries(exprs ...string) []*gojq.Query {
	queries := make([]*gojq.Query, 0, len(exprs))
	for _, e := range exprs {
		q, err := gojq.Parse(e)
		if err != nil {
			panic("persona: invalid builtin jq expression " + e + ": " + err.Error())
		}
		queries = append(queries, q)
	}
	return queries
}

// NormalizeStatus extracts pass/fail/unknown from a reply's result
// payload. Only "pass" counts as success for evaluator-style personas;
// unknown is treated as fail by every caller (see IsSuccess).
func NormalizeStatus(result string) Status {
	var parsed interface{}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		return statusFromPlainString(result)
	}

	for _, q := range statusQueries {
		iter := q.Run(parsed)
		v, ok := iter.Next()
		if !ok {
			continue
		}
		if err, isErr := v.(error); isErr {
			_ = err
			continue
		}
		if status, ok := statusFromValue(v); ok {
			return status
		}
	}
	return StatusUnknown
}

func statusFromValue(v interface{}) (Status, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return StatusPass, true
		}
		return StatusFail, true
	case string:
		return statusFromPlainString(t), t != ""
	default:
		return "", false
	}
}

func statusFromPlainString(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "approved", "success", "true":
		return StatusPass
	case "fail", "failed", "rejected", "error", "false":
		return StatusFail
	default:
		return StatusUnknown
	}
}

// IsSuccess reports whether status counts as success for evaluator-style
// personas. Unknown is always treated as failure: this implementation
// picks the conservative reading uniformly.
func IsSuccess(s Status) bool {
	return s == StatusPass
}
