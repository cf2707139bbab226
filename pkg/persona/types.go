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

// Package persona implements the request/reply protocol between the
// workflow engine and the external persona workers (contextualizer,
// planner, plan-evaluator, lead-engineer, tester-qa, code-reviewer,
// security-engineer, devops-engineer). The workers themselves — and the
// language-model calls they make — are out of scope; this package only
// publishes requests and interprets replies.
package persona

import "time"

// Name identifies a persona role. Kept as a plain string rather than an
// enum so new personas can be added without a code change here.
type Name = string

const (
	Contextualizer = "contextualizer"
	Planner        = "planner"
	PlanEvaluator  = "plan-evaluator"
	LeadEngineer   = "lead-engineer"
	TesterQA       = "tester-qa"
	CodeReviewer   = "code-reviewer"
	SecurityEngine = "security-engineer"
	DevOpsEngineer = "devops-engineer"
)

// Request is one record published on the shared request stream. Repo must
// be a remote URL, never a local filesystem path, since distributed
// persona workers resolve it to their own working copy.
type Request struct {
	WorkflowID     string
	ToPersona      string
	Step           string
	Intent         string
	Payload        map[string]interface{}
	Repo           string
	Branch         string
	ProjectID      string
	DeadlineSeconds int
	CorrID         string
}

// Status is the normalized outcome of a persona reply.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusUnknown Status = "unknown"
)

// ReplyStatus is the raw status field carried on the wire, distinct from
// the normalized Status above (which folds "unknown" into fail for callers
// that only care about success/failure).
type ReplyStatus string

const (
	ReplyDone    ReplyStatus = "done"
	ReplyError   ReplyStatus = "error"
	ReplyTimeout ReplyStatus = "timeout"
)

// Reply is the terminal record read back from a persona's reply stream for
// a given corrId. Result is typically a JSON string.
type Reply struct {
	CorrID string
	Status ReplyStatus
	Result string
}

// defaultRetryBackoffUnit is the per-attempt backoff multiplier: wait
// (attempt-1) * defaultRetryBackoffUnit before retry `attempt`, so waits
// are 0, 30s, 60s, 90s...
const defaultRetryBackoffUnit = 30 * time.Second
