package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Logger is the minimal structured-logging interface every component takes
// a dependency on. Context-aware variants exist so a logger implementation
// can pull trace/span ids out of ctx for correlation.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a subsystem tag its log lines with a component
// name (e.g. "orchestrator", "agent/contrarian", "storage") without each
// call site repeating it.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything; used as the zero-value default and in
// tests that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{}) {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})  {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{}) {}

// LogLevel orders the severities a ProductionLogger filters on.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ProductionLogger is a small structured logger in the pack's
// key=value style, component-aware and metrics-aware: once a
// MetricsRegistry is installed via SetMetricsRegistry, every Error call
// also increments an "errors_total" counter tagged by component.
type ProductionLogger struct {
	level     LogLevel
	component string
	fields    map[string]interface{}
}

// NewProductionLogger creates a root logger at InfoLevel.
func NewProductionLogger() *ProductionLogger {
	l := &ProductionLogger{level: InfoLevel, fields: map[string]interface{}{}}
	trackLogger(l)
	return l
}

// SetLevel adjusts the minimum severity that gets printed.
func (l *ProductionLogger) SetLevel(level LogLevel) { l.level = level }

func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{level: l.level, component: component, fields: l.fields}
}

func (l *ProductionLogger) withFields(fields map[string]interface{}) *ProductionLogger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ProductionLogger{level: l.level, component: l.component, fields: merged}
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(DebugLevel, "DEBUG", msg, fields)
}
func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(InfoLevel, "INFO", msg, fields)
}
func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(WarnLevel, "WARN", msg, fields)
}
func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(ErrorLevel, "ERROR", msg, fields)
	if registry := GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("errors_total", "component", l.component)
	}
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withBaggage(ctx, fields))
}
func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withBaggage(ctx, fields))
}
func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withBaggage(ctx, fields))
}
func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withBaggage(ctx, fields))
}

func withBaggage(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	registry := GetGlobalMetricsRegistry()
	if registry == nil {
		return fields
	}
	baggage := registry.GetBaggage(ctx)
	if len(baggage) == 0 {
		return fields
	}
	merged := make(map[string]interface{}, len(fields)+len(baggage))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range baggage {
		merged[k] = v
	}
	return merged
}

func (l *ProductionLogger) log(level LogLevel, levelName, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", levelName))
	if l.component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", l.component))
	}
	parts = append(parts, msg)

	keys := make([]string, 0, len(l.fields)+len(fields))
	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
		keys = append(keys, k)
	}
	for k, v := range fields {
		all[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, all[k]))
	}
	log.Println(strings.Join(parts, " "))
}

var (
	createdLoggers []*ProductionLogger
	loggersMu      sync.Mutex
)

func trackLogger(l *ProductionLogger) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	createdLoggers = append(createdLoggers, l)
}
