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

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors the coordinator and workflow
// engine report to. All counters/histograms are registered against a
// private registry so tests can construct independent Metrics instances
// without colliding on the default global registry.
type Metrics struct {
	registry *prometheus.Registry

	StepOutcomes           *prometheus.CounterVec
	PersonaRetries         *prometheus.CounterVec
	CoordinatorIterations  prometheus.Counter
	CoordinatorTaskOutcome *prometheus.CounterVec
	WorkflowDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "workflow",
			Name:      "step_outcomes_total",
			Help:      "Count of workflow step completions by step type and terminal status.",
		}, []string{"step_type", "status"}),

		PersonaRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "persona",
			Name:      "request_retries_total",
			Help:      "Count of persona request retry attempts by persona, excluding the first attempt.",
		}, []string{"persona"}),

		CoordinatorIterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "coordinator",
			Name:      "iterations_total",
			Help:      "Count of coordinator selection-loop iterations across all projects.",
		}),

		CoordinatorTaskOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "coordinator",
			Name:      "task_outcomes_total",
			Help:      "Count of per-task workflow runs by outcome (succeeded, aborted).",
		}, []string{"outcome"}),

		WorkflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskforge",
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one workflow run, by workflow name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
	}
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
