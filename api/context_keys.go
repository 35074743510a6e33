package api

import (
	"context"
	"time"
)

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

const (
	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyTraceStart stores the request start time (time.Time)
	ContextKeyTraceStart contextKey = "trace_start"

	// ContextKeyBody stores the body decoded by the configured body parser
	ContextKeyBody contextKey = "body"

	// ContextKeyUsername stores the user authenticated by basic auth (string)
	ContextKeyUsername contextKey = "username"
)

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyRequestID).(string)
	return id, ok && id != ""
}

func WithTraceStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyTraceStart, start)
}

func GetTraceStart(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(ContextKeyTraceStart).(time.Time)
	return start, ok
}

// GetUsername returns the user authenticated by basic auth, if any.
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(ContextKeyUsername).(string)
	return username, ok && username != ""
}
