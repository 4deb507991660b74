package core

import "context"

// MetricsRegistry lets the telemetry package register itself with core so
// that framework-internal code (loggers, the storage coordinator, the
// retrieval cache) can emit metrics without core importing telemetry and
// creating a cycle. Mirrors the global-registry-injection pattern in
// core/interfaces.go.
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
	GetBaggage(ctx context.Context) map[string]string
}

var globalMetricsRegistry MetricsRegistry

// SetMetricsRegistry installs the process-wide metrics registry. Called
// once by telemetry.Init.
func SetMetricsRegistry(r MetricsRegistry) {
	globalMetricsRegistry = r
}

// GetGlobalMetricsRegistry returns the installed registry, or nil if
// telemetry hasn't initialized yet.
func GetGlobalMetricsRegistry() MetricsRegistry {
	return globalMetricsRegistry
}

// Telemetry is the tracing half of the ambient stack, kept separate from
// MetricsRegistry because most components only need one or the other.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is a single unit of traced work.
type Span interface {
	SetAttribute(key string, value interface{})
	RecordError(err error)
	End()
}

// NoOpTelemetry discards every span; used when no tracer is configured.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noOpSpan{}
}

type noOpSpan struct{}

func (noOpSpan) SetAttribute(string, interface{}) {}
func (noOpSpan) RecordError(error)                {}
func (noOpSpan) End()                             {}
