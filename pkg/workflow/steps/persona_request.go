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

	"github.com/tombee/taskforge/pkg/persona"
	"github.com/tombee/taskforge/pkg/workflow"
)

// PersonaRequestStep publishes one request to a named persona and waits
// for its reply, composing the retry/back-off policy from
// persona.Client.RequestAndAwait.
type PersonaRequestStep struct {
	deps *Deps
}

// NewPersonaRequestStep returns the step factory for "persona_request".
func NewPersonaRequestStep(deps *Deps) workflow.StepFactory {
	return func(def *workflow.StepDefinition) workflow.Step {
		return &PersonaRequestStep{deps: deps}
	}
}

func (s *PersonaRequestStep) Execute(ctx context.Context, cfg map[string]interface{}, wfCtx *workflow.WorkflowContext) (workflow.StepOutput, error) {
	req := persona.Request{
		WorkflowID:      wfCtx.WorkflowID,
		ToPersona:       cfgString(cfg, "persona"),
		Step:            cfgString(cfg, "step"),
		Intent:          cfgString(cfg, "intent"),
		Payload:         cfgMap(cfg, "payload"),
		Repo:            wfCtx.RepoRemote,
		Branch:          wfCtx.Branch,
		ProjectID:       wfCtx.ProjectID,
		DeadlineSeconds: cfgInt(cfg, "deadlineSeconds", 0),
	}

	client := s.deps.personaClient(wfCtx)
	reply, err := client.RequestAndAwait(ctx, s.deps.requestStream(cfg), req,
		s.deps.timeoutMs(cfg, "timeoutMs"), s.deps.maxRetries(cfg, "maxRetries"))
	if err != nil {
		return workflow.StepOutput{}, err
	}

	status := persona.NormalizeStatus(reply.Result)
	s.deps.logger().Debug("persona reply received",
		"persona", req.ToPersona, "corr_id", reply.CorrID, "status", string(status),
		"result", s.deps.masker().MaskJSON(reply.Result))

	return workflow.StepOutput{Data: map[string]interface{}{
		"status": string(status),
		"result": reply.Result,
		"corrId": reply.CorrID,
		"passed": persona.IsSuccess(status),
	}}, nil
}
