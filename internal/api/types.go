package api

import "github.com/hit-sharq/kasikeu-boys-high-school/internal/users"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
}

// CheckAdminResponse reports the caller's admin status
type CheckAdminResponse struct {
	IsAdmin         bool   `json:"isAdmin"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	UserID          string `json:"userId,omitempty" example:"user_2abc"`
}

// UserListResponse lists the user directory
type UserListResponse struct {
	Users []*users.User `json:"users"`
	Total int           `json:"total"`
}

// SetRoleRequest changes one user's role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER TEACHER EDITOR ADMIN SUPER_ADMIN" example:"TEACHER"`
}
