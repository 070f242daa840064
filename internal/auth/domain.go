package auth

import (
	"strings"
	"time"

	"github.com/tradeboard/tradeboard/internal/registry"
)

// User represents an account in the users store.
type User struct {
	Username     string
	DisplayName  string
	Role         string
	MemberID     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Identity projects the user onto the identity consumed by the registry.
// The display name falls back to the username.
func (u User) Identity() registry.Identity {
	display := strings.TrimSpace(u.DisplayName)
	if display == "" {
		display = u.Username
	}
	return registry.Identity{
		Username:    u.Username,
		DisplayName: display,
		Role:        registry.ParseRole(u.Role),
		MemberID:    strings.TrimSpace(u.MemberID),
	}
}
