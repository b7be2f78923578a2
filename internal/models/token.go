package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Issued refresh token as it stored in the database
// Token string itself is not stored: ID is the token 'jti' claim
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
}

type IssuedToken struct {
	ID        uuid.UUID
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token pair issues by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Verified token payload
type TokenClaims struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
