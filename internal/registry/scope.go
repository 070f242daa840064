package registry

import "strings"

// Role is the access level of an identity.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleMember Role = "member"
)

// ParseRole lower-cases and trims a stored role value. Unknown values are
// returned as-is so that they resolve to no access.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether r is one of the declared roles.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleMember:
		return true
	}
	return false
}

// Privileged reports whether r sees every seller.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Identity is the authenticated caller.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	MemberID    string `json:"member_id"`
}

// ResolveScope restricts t to the rows id may see. Admin and staff see the
// whole table, members their own seller id, any other role nothing.
func ResolveScope(id Identity, t Table) (Table, error) {
	switch id.Role {
	case RoleAdmin, RoleStaff:
		return t, nil
	case RoleMember:
		member := strings.TrimSpace(id.MemberID)
		if member == "" {
			return Table{}, &AccessConfigError{Username: id.Username, Reason: "member role requires member_id"}
		}
		return t.Where(func(r Row) bool {
			return strings.TrimSpace(r.SellerID) == member
		}), nil
	default:
		return t.Empty(), nil
	}
}
