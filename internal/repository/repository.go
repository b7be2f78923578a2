package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storm/internal/models"
)

type CreateUserParams struct {
	Email          string
	Username       string
	FullName       *string
	HashedPassword string
}

// Fields to update on user profile. Nil means 'leave as is'
type UpdateProfileParams struct {
	FullName  *string
	AvatarURL *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If email is taken has to return error apperrors.ErrUserAlreadyExists
	// If username is taken has to return error apperrors.ErrUsernameTaken
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	ListUsers(ctx context.Context, offset int, limit int) ([]models.User, error)

	UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (models.User, error)
	SetLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error

	// Users are never deleted, only deactivated
	SetActive(ctx context.Context, userID uuid.UUID, active bool) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists, even it used or expired
	// If not exists must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenID uuid.UUID) (models.RefreshToken, error)

	// Mark token as used at 'usedAt' and return it
	// Must be safe for concurrent callers: only one of them succeeds
	// If the token is already used must return apperrors.ErrRefreshTokenIsUsed and must not overwrite 'usedAt'
	// If not exists must return apperrors.ErrRefreshTokenNotFound
	GetAndMarkUsed(ctx context.Context, tokenID uuid.UUID, usedAt time.Time) (models.RefreshToken, error)

	// Mark every not used token of the user as used at 'at'
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)

	// Delete tokens expired before the time
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Storage groups repositories sharing one connection (or transaction)
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Revoked access tokens. Entries live until the token expires by itself
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID uuid.UUID, until time.Time) error
	IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error)
}
