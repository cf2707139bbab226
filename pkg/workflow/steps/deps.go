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

// Package steps implements the concrete Step types the workflow engine's
// registry resolves by name: the atomic steps (persona_request,
// diff_apply, git_operation, ...) and the two composite loop steps
// (planning_loop, qa_iteration_loop).
package steps

import (
	"log/slog"

	"github.com/tombee/taskforge/pkg/dashboard"
	"github.com/tombee/taskforge/pkg/observability"
	"github.com/tombee/taskforge/pkg/secrets"
)

// Deps bundles the shared, process-wide collaborators every step needs,
// built once at startup and passed to Register. Per-run state (the
// transport, the repo working tree) lives on WorkflowContext instead,
// since it changes between runs; Deps is everything that doesn't.
type Deps struct {
	Dashboard *dashboard.Client

	// RequestStream is the stream persona requests are published to; it
	// comes from configuration option "requestStream".
	RequestStream string

	// GroupPrefix is the consumer-group prefix for persona replies,
	// from configuration option "groupPrefix".
	GroupPrefix string

	// DefaultTimeoutMs/DefaultMaxRetries seed PersonaRequestStep and the
	// loop steps when a step's config omits them.
	DefaultTimeoutMs   int
	DefaultMaxRetries  int

	Masker *secrets.Masker
	Logger *slog.Logger

	// Metrics is optional; when set, persona retries made by steps built
	// from this Deps are reported against it.
	Metrics *observability.Metrics
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) masker() *secrets.Masker {
	if d.Masker != nil {
		return d.Masker
	}
	return secrets.NewMasker()
}
