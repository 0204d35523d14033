package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithRunID stores the load-test run id in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

// RunID extracts the run id stored by WithRunID.
func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// FromContext adds the run id found in ctx to the logger
func FromContext(ctx context.Context, l *zap.SugaredLogger) *zap.SugaredLogger {
	if id := RunID(ctx); id != "" {
		return l.With("run_id", id)
	}
	return l
}

// ForClient tags every line with the simulated client's name.
func ForClient(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return l.With("client", name)
}
