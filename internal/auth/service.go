package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/shared"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("auth: password must not be empty")

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates username/password credentials. Every failure maps
// to shared.ErrInvalidCredentials except store errors other than not found.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword returns the bcrypt hash stored in the users store.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// NewUser validates the fields of a new account and hashes its password.
func NewUser(username, display, role, memberID, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, errors.New("auth: username is required")
	}
	parsed := registry.ParseRole(role)
	if !parsed.Known() {
		return User{}, errors.New("auth: role must be admin, staff or member")
	}
	memberID = strings.TrimSpace(memberID)
	if parsed == registry.RoleMember && memberID == "" {
		return User{}, errors.New("auth: member role requires member id")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return User{
		Username:     username,
		DisplayName:  strings.TrimSpace(display),
		Role:         string(parsed),
		MemberID:     memberID,
		PasswordHash: hash,
		IsActive:     true,
	}, nil
}
