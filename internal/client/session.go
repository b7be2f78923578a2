package client

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the profile snapshot of the logged in user
type Identity struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FullName   *string    `json:"full_name"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
	AvatarURL  *string    `json:"avatar_url"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login"`
}

// Session held by the client and persisted between runs
type Session struct {
	Token           string    `json:"token"`
	RefreshToken    string    `json:"refreshToken"`
	User            *Identity `json:"user"`
	IsAuthenticated bool      `json:"isAuthenticated"`
}
