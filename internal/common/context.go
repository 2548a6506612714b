package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID      contextKey = "request_id"
	ContextKeyStageRequestID contextKey = "stage_request_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithStageRequestID tags the context with the stored stage request being processed.
func WithStageRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyStageRequestID, id)
}

// StageRequestIDFromContext extracts the stage request ID from context
func StageRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyStageRequestID).(string); ok {
		return id
	}
	return ""
}

// WithTimeout creates a context with the specified timeout; zero means no timeout.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
