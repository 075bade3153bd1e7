package types

import "context"

// AnonymousCaller is the sentinel caller key assigned to requests that arrive
// without a recognizable API key. Anonymous callers are served on the free
// plan rather than rejected.
const AnonymousCaller = "anonymous"

// Caller represents the resolved identity of an API consumer for one request.
// It is read-only once placed in the request context.
type Caller struct {
	Key  string
	Plan PlanTier
}

// IsAnonymous reports whether this caller was downgraded to the anonymous
// identity.
func (c Caller) IsAnonymous() bool {
	return c.Key == AnonymousCaller
}

// Context Keys
type contextKey string

const (
	callerKey    contextKey = "caller"
	requestIDKey contextKey = "request_id"
)

// WithCaller stores the Caller in the context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller retrieves the Caller from the context.
func GetCaller(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
