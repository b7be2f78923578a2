package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RolePremium = "premium"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Email          string
	Username       string
	FullName       *string
	HashedPassword string
	Role           string
	IsActive       bool
	IsVerified     bool
	AvatarURL      *string
	LastLogin      *time.Time // nil if user never logged in
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
