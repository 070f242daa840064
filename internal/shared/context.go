package shared

import (
	"context"

	"github.com/tradeboard/tradeboard/internal/registry"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session, or nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// IdentityFromContext returns the identity bound to the request session.
func IdentityFromContext(ctx context.Context) (registry.Identity, bool) {
	return SessionFromContext(ctx).Identity()
}
