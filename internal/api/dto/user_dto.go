package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// RegisterRequest payload.
type RegisterRequest struct {
	Name         string          `json:"name" validate:"required,max=120"`
	Email        string          `json:"email" validate:"required,email"`
	Password     string          `json:"password" validate:"required,min=8"`
	Role         domain.UserRole `json:"role"`
	DepartmentID *string         `json:"department_id"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns token details after login/registration.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Role         domain.UserRole `json:"role"`
	DepartmentID *string         `json:"department_id"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
}
