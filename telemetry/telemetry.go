// Package telemetry centralizes the OpenTelemetry tracer and Prometheus
// metric registrations shared across the runtime's components, so call
// sites depend on a single small surface instead of importing
// go.opentelemetry.io/otel and prometheus/client_golang directly.
package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the process-wide TracerProvider.
// Components name spans "<component>.<operation>" (e.g.
// "eventstream.append", "mcp.run_action", "controller.step").
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
