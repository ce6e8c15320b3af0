package audit

import (
	"context"

	"github.com/platinummonkey/fieldaudit/pkg/contextkeys"
)

// WithActor adds the acting principal to the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextkeys.ActorKey, actor)
}

// ActorFromContext retrieves the acting principal from context
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(Actor)
	return actor, ok
}

// WithRequestContext adds request metadata to the context
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextkeys.RequestContextKey, rc)
}

// RequestContextFromContext retrieves request metadata from context
func RequestContextFromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextkeys.RequestContextKey).(RequestContext)
	return rc, ok
}
