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

package errors

import "errors"

// WorkflowAbortError is implemented by error types that carry a
// machine-readable reason a workflow run was aborted (dirty_working_tree,
// push_failed, no_op_implementation). The coordinator surfaces the reason
// in its abort metadata so an operator can distinguish "the tree was
// dirty" from "the push was rejected" without parsing error strings.
type WorkflowAbortError interface {
	error

	// AbortReason returns the stable reason token for this abort.
	AbortReason() string
}

// AbortReasonOf walks err's tree for a WorkflowAbortError and returns its
// reason token, or ("", false) when the failure carries no abort
// classification (a plain step error, a timeout, a transport fault).
func AbortReasonOf(err error) (string, bool) {
	var abort WorkflowAbortError
	if errors.As(err, &abort) {
		return abort.AbortReason(), true
	}
	return "", false
}

// AbortReason classifies a dirty working tree at checkout.
func (e *DirtyWorkingTreeError) AbortReason() string { return "dirty_working_tree" }

// AbortReason classifies a commit that could not be pushed to origin.
func (e *PushFailedError) AbortReason() string { return "push_failed" }

// AbortReason classifies an implementation that produced no mutation:
// zero parsed operations, zero changed files, or a commit with no SHA.
func (e *NoOpImplementationError) AbortReason() string { return "no_op_implementation" }
