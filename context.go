package finauth

import "context"

type requestIDContextKey struct{}

// WithRequestID pins the X-Client-Request-Id header for calls made with
// ctx. Without it every request gets a fresh UUID. Useful for correlating
// client logs with remote-side request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
