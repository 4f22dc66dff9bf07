// Package logging defines the structured logging interfaces used across
// cogcore and a zap-backed production implementation.
package logging

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the base structured logging surface every component depends on.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentLogger extends Logger with a bound component identifier, e.g.
// "core/economy" or "core/autonomy", so logs can be filtered by subsystem.
type ComponentLogger interface {
	Logger
	WithComponent(component string) ComponentLogger
}

// traceKey is the context key a request-scoped trace id is stored under.
type traceKey struct{}

// WithTraceID returns a context carrying traceID for correlation in logs.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func traceIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceKey{}).(string)
	return v, ok
}

// zapLogger adapts a *zap.SugaredLogger to ComponentLogger.
type zapLogger struct {
	sugar     *zap.SugaredLogger
	component string
}

// New wraps base with an empty component, suitable as the application root
// logger. base is typically built via zap.NewProduction() or
// zap.NewDevelopment() depending on configuration.
func New(base *zap.Logger) ComponentLogger {
	return &zapLogger{sugar: base.Sugar()}
}

func (l *zapLogger) WithComponent(component string) ComponentLogger {
	return &zapLogger{sugar: l.sugar, component: component}
}

func (l *zapLogger) fields(fields map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields)*2+2)
	if l.component != "" {
		out = append(out, "component", l.component)
	}
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func (l *zapLogger) Info(msg string, fields map[string]interface{}) {
	l.sugar.Infow(msg, l.fields(fields)...)
}

func (l *zapLogger) Error(msg string, fields map[string]interface{}) {
	l.sugar.Errorw(msg, l.fields(fields)...)
}

func (l *zapLogger) Warn(msg string, fields map[string]interface{}) {
	l.sugar.Warnw(msg, l.fields(fields)...)
}

func (l *zapLogger) Debug(msg string, fields map[string]interface{}) {
	l.sugar.Debugw(msg, l.fields(fields)...)
}

func (l *zapLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withTrace(ctx, fields)
	l.Info(msg, fields)
}

func (l *zapLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withTrace(ctx, fields)
	l.Error(msg, fields)
}

func (l *zapLogger) withTrace(ctx context.Context, fields map[string]interface{}) {
	if traceID, ok := traceIDFromContext(ctx); ok {
		fields["trace_id"] = traceID
	}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() ComponentLogger {
	return New(zap.NewNop())
}
