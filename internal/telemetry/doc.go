// Package telemetry wraps OpenTelemetry SDK initialization and provides the
// central TracerProvider and MeterProvider configuration for SwarmFlow.
// When telemetry is disabled the global providers remain noop and no
// external service is contacted.
package telemetry
