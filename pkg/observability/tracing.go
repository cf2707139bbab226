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

// Package observability wires the coordinator and workflow engine into
// OpenTelemetry tracing and Prometheus metrics. Neither concern is named
// in the core contract, but both are carried the way the rest of the
// ambient stack is: a run that never configures a TracerProvider or
// Metrics still works, it is simply unobserved.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every coordinator/workflow span
// is created under.
const TracerName = "github.com/tombee/taskforge/internal/coordinator"

// NewTracerProvider builds an SDK TracerProvider that exports spans as
// indented (pretty-printed) JSON to stdout, registers it as the global provider,
// and returns a shutdown function the caller must invoke before exit so
// buffered spans are flushed. Production deployments that need a real
// collector can swap the exporter; nothing else in this package depends
// on stdouttrace specifically.
func NewTracerProvider(serviceName, serviceVersion string) (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: building stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the package-scoped tracer from whatever TracerProvider is
// currently registered globally (the no-op provider if NewTracerProvider
// was never called).
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
