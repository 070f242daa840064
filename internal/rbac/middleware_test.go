package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeboard/tradeboard/internal/registry"
)

type fixedIdentity struct {
	id registry.Identity
	ok bool
}

func (f fixedIdentity) Identity(*http.Request) (registry.Identity, bool) { return f.id, f.ok }

func serve(mw func(http.Handler) http.Handler) int {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/registry/reload", nil))
	return rr.Code
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		resolver IdentityResolver
		want     int
	}{
		{"anonymous", fixedIdentity{}, http.StatusUnauthorized},
		{"admin", fixedIdentity{id: registry.Identity{Username: "a", Role: registry.RoleAdmin}, ok: true}, http.StatusNoContent},
		{"staff", fixedIdentity{id: registry.Identity{Username: "s", Role: registry.RoleStaff}, ok: true}, http.StatusForbidden},
		{"member", fixedIdentity{id: registry.Identity{Username: "m", Role: registry.RoleMember, MemberID: "S1"}, ok: true}, http.StatusForbidden},
		{"unknown role", fixedIdentity{id: registry.Identity{Username: "g", Role: "guest"}, ok: true}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Middleware{Identities: tc.resolver}
			assert.Equal(t, tc.want, serve(m.RequireRole(registry.RoleAdmin)))
		})
	}
}

func TestRequireRoleIgnoresUndeclaredRoles(t *testing.T) {
	m := Middleware{Identities: fixedIdentity{id: registry.Identity{Role: "guest"}, ok: true}}
	assert.Equal(t, http.StatusForbidden, serve(m.RequireRole("guest")))
}

func TestRequireIdentity(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(Middleware{}.RequireIdentity))

	m := Middleware{Identities: fixedIdentity{id: registry.Identity{Role: registry.RoleMember, MemberID: "S1"}, ok: true}}
	assert.Equal(t, http.StatusNoContent, serve(m.RequireIdentity))
}
