package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure keeps an existing ID and attaches a new one otherwise. Executions
// started by the due-check have no HTTP request behind them but still log
// under one ID per run.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := New()
	return WithRequestID(ctx, id), id
}
