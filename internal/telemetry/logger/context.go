package logger

import "context"

type contextKey string

const requestIDKey contextKey = "keymesh.request_id"

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

// L enriches base (or the default logger when base is nil) with the
// request ID carried by ctx.
func L(ctx context.Context, base Logger) Logger {
	l := OrDefault(base)
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	return l
}
