package auth

import (
	"net/http"

	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/shared"
)

// DemoIdentity is the fixed caller used when authentication is disabled.
var DemoIdentity = registry.Identity{
	Username:    "demo",
	DisplayName: "Demo",
	Role:        registry.RoleAdmin,
}

// Resolver reads the caller identity from the request session.
type Resolver struct {
	disabled bool
}

// NewResolver returns a Resolver. When disabled every request resolves to
// DemoIdentity.
func NewResolver(disabled bool) *Resolver {
	return &Resolver{disabled: disabled}
}

// Identity implements the identity lookup used by handlers and guards.
func (r *Resolver) Identity(req *http.Request) (registry.Identity, bool) {
	if r != nil && r.disabled {
		return DemoIdentity, true
	}
	return shared.IdentityFromContext(req.Context())
}
