package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (ComponentLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return New(zap.New(core)), logs
}

func TestInfoWritesFieldsUnderComponent(t *testing.T) {
	l, logs := newObservedLogger()
	l = l.WithComponent("economy")

	l.Info("spent", map[string]interface{}{"amount": 4.5})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "spent", entry.Message)
	assert.Equal(t, "economy", entry.ContextMap()["component"])
	assert.Equal(t, 4.5, entry.ContextMap()["amount"])
}

func TestWithComponentReturnsIndependentLogger(t *testing.T) {
	l, _ := newObservedLogger()
	root := l
	scoped := l.WithComponent("orchestrator")

	assert.NotEqual(t, root, scoped)
}

func TestInfoWithContextAttachesTraceID(t *testing.T) {
	l, logs := newObservedLogger()
	ctx := WithTraceID(context.Background(), "trace-123")

	l.InfoWithContext(ctx, "invoked", map[string]interface{}{})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "trace-123", logs.All()[0].ContextMap()["trace_id"])
}

func TestErrorWithContextWithoutTraceIDOmitsField(t *testing.T) {
	l, logs := newObservedLogger()

	l.ErrorWithContext(context.Background(), "failed", map[string]interface{}{"code": "TOOL_CRASH"})

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["trace_id"]
	assert.False(t, ok)
}

func TestNewNopDiscardsWithoutPanicking(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("noop", map[string]interface{}{"x": 1})
		l.WithComponent("x").Warn("noop", nil)
	})
}
