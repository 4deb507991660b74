package telemetry

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsRegistry implements core.MetricsRegistry on top of the
// OpenTelemetry metrics SDK. It uses a ManualReader rather than a push
// exporter: the instruments are real (Counter/Gauge/Histogram semantics,
// correct aggregation), but this module does not assume an OTLP collector
// is reachable, following the pattern of keeping the metrics
// pipeline usable in tests without a live backend.
type MetricsRegistry struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewMetricsRegistry builds a registry backed by an in-process reader.
func NewMetricsRegistry() *MetricsRegistry {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &MetricsRegistry{
		reader:     reader,
		provider:   provider,
		meter:      provider.Meter("autoresearch/orchestrator-core"),
		counters:   map[string]metric.Float64Counter{},
		gauges:     map[string]metric.Float64Gauge{},
		histograms: map[string]metric.Float64Histogram{},
	}
}

func labelsToAttrs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// Counter increments a named counter by 1, tagged with the given
// alternating key/value labels.
func (r *MetricsRegistry) Counter(name string, labels ...string) {
	r.EmitWithContext(context.Background(), name, 1, labels...)
}

// Gauge sets a point-in-time measurement.
func (r *MetricsRegistry) Gauge(name string, value float64, labels ...string) {
	r.mu.Lock()
	g, ok := r.gauges[name]
	if !ok {
		var err error
		g, err = r.meter.Float64Gauge(name)
		if err != nil {
			r.mu.Unlock()
			return
		}
		r.gauges[name] = g
	}
	r.mu.Unlock()
	g.Record(context.Background(), value, metric.WithAttributes(labelsToAttrs(labels)...))
}

// Histogram records a distribution sample (latency, size, score, ...).
func (r *MetricsRegistry) Histogram(name string, value float64, labels ...string) {
	r.mu.Lock()
	h, ok := r.histograms[name]
	if !ok {
		var err error
		h, err = r.meter.Float64Histogram(name)
		if err != nil {
			r.mu.Unlock()
			return
		}
		r.histograms[name] = h
	}
	r.mu.Unlock()
	h.Record(context.Background(), value, metric.WithAttributes(labelsToAttrs(labels)...))
}

// EmitWithContext records value against the named counter, correlating
// with the span active in ctx (trace/span id attached as attributes by
// the SDK's exemplar machinery when available).
func (r *MetricsRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	r.mu.Lock()
	c, ok := r.counters[name]
	if !ok {
		var err error
		c, err = r.meter.Float64Counter(name)
		if err != nil {
			r.mu.Unlock()
			return
		}
		r.counters[name] = c
	}
	r.mu.Unlock()
	c.Add(ctx, value, metric.WithAttributes(labelsToAttrs(labels)...))
}

// GetBaggage extracts W3C baggage members from ctx as a plain map, used by
// core.ProductionLogger to correlate log lines with the active trace.
func (r *MetricsRegistry) GetBaggage(ctx context.Context) map[string]string {
	bag := baggage.FromContext(ctx)
	members := bag.Members()
	if len(members) == 0 {
		return nil
	}
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}

// WithBaggage returns a context carrying the given key/value pairs as W3C
// baggage, used to propagate query_id/cycle across agent calls the way an
// orchestration layer typically propagates request_id.
func WithBaggage(ctx context.Context, kv ...string) context.Context {
	var members []baggage.Member
	for i := 0; i+1 < len(kv); i += 2 {
		m, err := baggage.NewMember(kv[i], sanitizeBaggageValue(kv[i+1]))
		if err != nil {
			continue
		}
		members = append(members, m)
	}
	bag, err := baggage.New(members...)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func sanitizeBaggageValue(v string) string {
	return strings.ReplaceAll(v, ",", "_")
}

// Shutdown releases the underlying meter provider's resources.
func (r *MetricsRegistry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
