// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/fieldaudit/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.ActorKey, actor)
//	actor, _ := ctx.Value(contextkeys.ActorKey).(audit.Actor)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains audit.Actor
	// Set by: audit.Middleware through its ActorResolver, or the session layer
	// Required by: audit.Recorder when an entry carries no actor
	// Type: audit.Actor
	ActorKey Key = "audit_actor"

	// RequestContextKey contains audit.RequestContext
	// Set by: audit.Middleware (pkg/audit/middleware.go)
	// Used by: audit.Recorder to stamp ip, user agent, endpoint and method
	// Type: audit.RequestContext
	RequestContextKey Key = "audit_request_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, recorder diagnostics
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
