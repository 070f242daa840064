package rbac

import (
	"log/slog"
	"net/http"

	"github.com/tradeboard/tradeboard/internal/platform/httpx"
	"github.com/tradeboard/tradeboard/internal/registry"
)

// IdentityResolver returns the authenticated caller of a request.
type IdentityResolver interface {
	Identity(r *http.Request) (registry.Identity, bool)
}

// Middleware wires role guards for HTTP handlers.
type Middleware struct {
	Identities IdentityResolver
	Logger     *slog.Logger
}

// RequireIdentity rejects requests without an authenticated identity.
func (m Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.identity(r); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Oturum gerekli", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole ensures the current identity holds one of the given roles.
func (m Middleware) RequireRole(roles ...registry.Role) func(http.Handler) http.Handler {
	allowed := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := m.identity(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Oturum gerekli", "")
				return
			}
			if _, granted := allowed[id.Role]; granted {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac role denied",
					slog.String("user", id.Username),
					slog.String("role", string(id.Role)),
					slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Yetkisiz işlem", "")
		})
	}
}

func (m Middleware) identity(r *http.Request) (registry.Identity, bool) {
	if m.Identities == nil {
		return registry.Identity{}, false
	}
	return m.Identities.Identity(r)
}

func normalizeRoles(roles []registry.Role) map[registry.Role]struct{} {
	set := make(map[registry.Role]struct{}, len(roles))
	for _, role := range roles {
		role = registry.ParseRole(string(role))
		if role.Known() {
			set[role] = struct{}{}
		}
	}
	return set
}
