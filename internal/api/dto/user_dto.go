package dto

import (
	"time"

	"github.com/spec-kit/handover-bot/internal/domain"
)

// TokenRequest exchanges the admin secret for an ops API token.
type TokenRequest struct {
	UserID int64  `json:"user_id"`
	Secret string `json:"secret"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is a directory entry.
type UserResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, DisplayName: u.DisplayName, Role: string(u.Role)}
}
