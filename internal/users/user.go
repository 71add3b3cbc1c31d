// Package users keeps the school's directory of site users, mirrored from the
// identity provider through its lifecycle webhook.
package users

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=user.go Store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is a user's role on the site. Only the admin allow-list grants admin
// routes; roles are informational for the site's own pages.
type Role string

// Valid roles
const (
	RoleUser       Role = "USER"
	RoleTeacher    Role = "TEACHER"
	RoleEditor     Role = "EDITOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var (
	// ErrNotFound is returned when no user has the given external id
	ErrNotFound = errors.New("user not found")

	// ErrAlreadyExists is returned when creating a user whose external id is taken
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidRole is returned for roles outside the known set
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidUser is returned when a user has no external id
	ErrInvalidUser = errors.New("external id is required")
)

// ParseRole validates s and returns it as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleTeacher, RoleEditor, RoleAdmin, RoleSuperAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// User is one site user
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Profile holds the fields the identity provider owns.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
}

// Store persists users keyed by their identity-provider id.
type Store interface {
	// Create adds a user with role USER
	Create(ctx context.Context, externalID string, p Profile) (*User, error)
	// Update replaces the profile fields of an existing user
	Update(ctx context.Context, externalID string, p Profile) (*User, error)
	// Delete removes a user
	Delete(ctx context.Context, externalID string) error
	// GetByExternalID looks a user up
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	// List returns all users, oldest first
	List(ctx context.Context) ([]*User, error)
	// SetRole changes a user's role
	SetRole(ctx context.Context, externalID string, role Role) (*User, error)
	// Close releases the backend
	Close() error
}

func newUser(externalID string, p Profile, now time.Time) (*User, error) {
	if externalID == "" {
		return nil, ErrInvalidUser
	}
	return &User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Role:       RoleUser,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) applyProfile(p Profile, now time.Time) {
	u.Email = p.Email
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.UpdatedAt = now
}

func (u *User) clone() *User {
	c := *u
	return &c
}
