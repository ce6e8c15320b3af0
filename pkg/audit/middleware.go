package audit

import (
	"net"
	"net/http"
	"strings"
)

// ActorResolver identifies the principal behind a request
type ActorResolver interface {
	ResolveActor(r *http.Request) (Actor, bool)
}

// ActorResolverFunc adapts a function to ActorResolver
type ActorResolverFunc func(r *http.Request) (Actor, bool)

// ResolveActor calls f(r)
func (f ActorResolverFunc) ResolveActor(r *http.Request) (Actor, bool) {
	return f(r)
}

// HeaderActorResolver reads identity headers set by a trusted upstream
// proxy. Only use it behind a proxy that strips these headers from clients.
type HeaderActorResolver struct {
	IDHeader    string
	EmailHeader string
	NameHeader  string
}

// DefaultHeaderActorResolver uses X-User-ID, X-User-Email and X-User-Name
func DefaultHeaderActorResolver() HeaderActorResolver {
	return HeaderActorResolver{
		IDHeader:    "X-User-ID",
		EmailHeader: "X-User-Email",
		NameHeader:  "X-User-Name",
	}
}

// ResolveActor returns the actor named by the headers, if an email is present
func (h HeaderActorResolver) ResolveActor(r *http.Request) (Actor, bool) {
	email := strings.TrimSpace(r.Header.Get(h.EmailHeader))
	if email == "" {
		return Actor{}, false
	}
	return Actor{
		ID:    strings.TrimSpace(r.Header.Get(h.IDHeader)),
		Email: email,
		Name:  strings.TrimSpace(r.Header.Get(h.NameHeader)),
	}, true
}

// Middleware stores request metadata and the resolved actor in the request
// context, where the Recorder picks them up
type Middleware struct {
	resolver ActorResolver
}

// NewMiddleware creates a new audit middleware. resolver may be nil when an
// earlier layer already calls WithActor.
func NewMiddleware(resolver ActorResolver) *Middleware {
	return &Middleware{resolver: resolver}
}

// Handler wraps an HTTP handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestContext(r.Context(), RequestContextFrom(r))

		if _, ok := ActorFromContext(ctx); !ok && m.resolver != nil {
			if actor, ok := m.resolver.ResolveActor(r); ok {
				ctx = WithActor(ctx, actor)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestContextFrom extracts the audit request metadata from r
func RequestContextFrom(r *http.Request) RequestContext {
	return RequestContext{
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		Endpoint:   r.URL.Path,
		HTTPMethod: r.Method,
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address without its port
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
