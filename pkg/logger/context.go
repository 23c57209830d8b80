package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// WithRequestID stores the request id so FromContext can tag entries with it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns Log with the request_id field when ctx carries one.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return Log
	}
	if id := RequestID(ctx); id != "" {
		return Log.With(zap.String("request_id", id))
	}
	return Log
}
