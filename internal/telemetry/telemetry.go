// Package telemetry defines the tracing/metrics surface cogcore's
// components depend on, backed by the OpenTelemetry SDK.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the span/metric surface every component takes a dependency
// on; a NoOp implementation is used in tests and when tracing is disabled.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// otelTelemetry backs Telemetry with a real tracer provider.
type otelTelemetry struct {
	tracer  trace.Tracer
	metrics map[string]float64 // last-write-wins gauge cache, keyed by metric name
}

// New builds a Telemetry backed by provider, registered under
// instrumentation name "cogcore".
func New(provider *sdktrace.TracerProvider) Telemetry {
	otel.SetTracerProvider(provider)
	return &otelTelemetry{
		tracer:  provider.Tracer("cogcore"),
		metrics: make(map[string]float64),
	}
}

func (t *otelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (t *otelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	t.metrics[name] = value
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return ""
}

// NoOp is used when tracing is disabled or in tests.
type NoOp struct{}

func (NoOp) StartSpan(ctx context.Context, name string) (context.Context, Span) { return ctx, noOpSpan{} }
func (NoOp) RecordMetric(name string, value float64, labels map[string]string) {}

type noOpSpan struct{}

func (noOpSpan) End()                                  {}
func (noOpSpan) SetAttribute(key string, value interface{}) {}
func (noOpSpan) RecordError(err error)                 {}
