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
	"github.com/tombee/taskforge/pkg/persona"
	"github.com/tombee/taskforge/pkg/workflow"
)

// personaClient builds a persona.Client bound to this run's transport.
// It is cheap (no connection setup beyond a consumer id) so a fresh one
// per step execution is fine; the underlying Transport connection is
// shared and owned by the caller.
func (d *Deps) personaClient(wfCtx *workflow.WorkflowContext) *persona.Client {
	c := persona.NewClient(wfCtx.Transport, d.GroupPrefix, d.logger())
	c.Metrics = d.Metrics
	return c
}

func (d *Deps) requestStream(cfg map[string]interface{}) string {
	if s := cfgString(cfg, "requestStream"); s != "" {
		return s
	}
	return d.RequestStream
}

func (d *Deps) timeoutMs(cfg map[string]interface{}, key string) int {
	return cfgInt(cfg, key, d.DefaultTimeoutMs)
}

func (d *Deps) maxRetries(cfg map[string]interface{}, key string) int {
	return cfgInt(cfg, key, d.DefaultMaxRetries)
}
