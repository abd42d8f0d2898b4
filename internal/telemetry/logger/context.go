// Package logger provides structured logging for Sandstore.
package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "sandstore.logger"
	// requestIDKey is the context key for request ID.
	requestIDKey contextKey = "sandstore.request_id"
	// resIDKey is the context key for the tenant res_id.
	resIDKey contextKey = "sandstore.res_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithResID adds the res_id a request works on to the context.
func WithResID(ctx context.Context, resID string) context.Context {
	return context.WithValue(ctx, resIDKey, resID)
}

// ResIDFromContext extracts the res_id from context.
func ResIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(resIDKey).(string); ok {
		return id
	}
	return ""
}

// L is a shorthand for FromContext that also enriches the logger
// with request ID and res_id from the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)

	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}

	if resID := ResIDFromContext(ctx); resID != "" {
		l = l.With("res_id", resID)
	}

	return l
}
