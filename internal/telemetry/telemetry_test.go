package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNoOpStartSpanReturnsUsableSpan(t *testing.T) {
	var tel Telemetry = NoOp{}
	ctx, span := tel.StartSpan(context.Background(), "orchestrator.invoke")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.SetAttribute("tool", "weather")
		span.RecordError(errors.New("boom"))
		span.End()
	})
}

func TestNoOpRecordMetricDoesNotPanic(t *testing.T) {
	var tel Telemetry = NoOp{}
	assert.NotPanics(t, func() {
		tel.RecordMetric("pain_score", 0.5, map[string]string{"kind": "MAINTAIN"})
	})
}

func TestOtelTelemetryStartSpanAndSetAttributes(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())

	tel := New(provider)
	ctx, span := tel.StartSpan(context.Background(), "evolution.evaluate_mutation")
	assert.NotNil(t, ctx)

	assert.NotPanics(t, func() {
		span.SetAttribute("risk", "high")
		span.SetAttribute("files", 3)
		span.SetAttribute("files64", int64(3))
		span.SetAttribute("cost", 1.5)
		span.SetAttribute("simulated", true)
		span.RecordError(errors.New("simulation failed"))
		span.End()
	})
}

func TestOtelTelemetryRecordMetricCachesLastValue(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())

	tel := New(provider).(*otelTelemetry)
	tel.RecordMetric("harm_counter", 1, nil)
	tel.RecordMetric("harm_counter", 2, nil)

	assert.Equal(t, 2.0, tel.metrics["harm_counter"])
}
