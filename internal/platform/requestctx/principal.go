// Package requestctx carries the authenticated principal through context.
//
// Operations never consult ambient session state; the surrounding transport
// layer resolves the actor once and stores it here.
package requestctx

import "context"

// principalContextKey is the context key for the authenticated principal.
type principalContextKey struct{}

// Principal identifies the authenticated actor for one request.
type Principal struct {
	UserID string
	Email  string
}

// WithPrincipal stores the acting principal in context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the acting principal stored in context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || principal.UserID == "" {
		return Principal{}, false
	}
	return principal, true
}
