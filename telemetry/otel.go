// Package telemetry wires the orchestration core into OpenTelemetry,
// providing the tracing and metrics halves of core.Telemetry and
// core.MetricsRegistry. Grounded on telemetry/otel.go:
// Init's stdout exporter mirrors that file's pretty-printed console path
// for tests and local runs, while InitOTLP mirrors its
// NewOTelProvider — an OTLP/HTTP trace exporter pointed at a collector
// endpoint, the primary telemetry path in that module.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/autoresearch/orchestrator-core/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles the tracer and the metrics registry the rest of the
// module consumes through core.Telemetry / core.MetricsRegistry.
type Provider struct {
	tracer        trace.Tracer
	traceProvider *sdktrace.TracerProvider
	metrics       *MetricsRegistry

	shutdownOnce sync.Once
}

// Init creates a Provider, wires a stdout span exporter (swappable for an
// OTLP exporter by a caller-supplied sdktrace.SpanExporter — see
// InitWithExporter), and registers the resulting MetricsRegistry with core
// via core.SetMetricsRegistry so framework-internal code can emit metrics
// without importing this package.
func Init(serviceName string) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, core.NewError("telemetry.Init", core.KindFatal, err)
	}
	return InitWithExporter(serviceName, exporter)
}

// InitOTLP creates a Provider exporting spans to an OTLP/HTTP collector
// at endpoint (e.g. "localhost:4318"), the deployment path a production
// run wires instead of Init's stdout exporter.
func InitOTLP(ctx context.Context, serviceName, endpoint string) (*Provider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, core.NewError("telemetry.InitOTLP", core.KindFatal, err)
	}
	return InitWithExporter(serviceName, exporter)
}

// InitWithExporter is Init parameterized on the span exporter, so tests
// and alternate deployments can substitute an in-memory or OTLP exporter.
func InitWithExporter(serviceName string, exporter sdktrace.SpanExporter) (*Provider, error) {
	if serviceName == "" {
		return nil, core.NewError("telemetry.Init", core.KindConfig, nil).WithMessage("service name required")
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	p := &Provider{
		tracer:        tp.Tracer("autoresearch/orchestrator-core"),
		traceProvider: tp,
		metrics:       NewMetricsRegistry(),
	}
	core.SetMetricsRegistry(p.metrics)
	return p, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &spanWrapper{span: span}
}

// Shutdown flushes pending spans. Safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		err = p.traceProvider.Shutdown(ctx)
	})
	return err
}

// Metrics returns the MetricsRegistry, for components that want to emit
// metrics directly rather than through core.GetGlobalMetricsRegistry.
func (p *Provider) Metrics() *MetricsRegistry { return p.metrics }

type spanWrapper struct {
	span trace.Span
}

func (s *spanWrapper) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *spanWrapper) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s *spanWrapper) End() { s.span.End() }
