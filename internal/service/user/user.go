package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storm/internal/logger"
	"github.com/nkiryanov/storm/internal/models"
	"github.com/nkiryanov/storm/internal/repository"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type UserService struct {
	storage repository.Storage
	logger  logger.Logger
	now     func() time.Time
}

func NewService(storage repository.Storage, l logger.Logger) *UserService {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		storage: storage,
		logger:  l,
		now:     time.Now,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// Update profile fields. Nil fields stay as is
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, params repository.UpdateProfileParams) (models.User, error) {
	user, err := s.storage.User().UpdateProfile(ctx, userID, params)
	if err != nil {
		return user, fmt.Errorf("can't update profile. Err: %w", err)
	}
	return user, nil
}

// List users ordered by registration
// Not positive limit means default one, too big is cut to MaxListLimit
func (s *UserService) ListUsers(ctx context.Context, skip int, limit int) ([]models.User, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	skip = max(skip, 0)

	return s.storage.User().ListUsers(ctx, skip, limit)
}

// Deactivate user and revoke every refresh token the user has
// Access tokens become useless as well: authentication checks the user is active
func (s *UserService) Deactivate(ctx context.Context, userID uuid.UUID) (models.User, error) {
	var user models.User

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		user, err = tx.User().SetActive(ctx, userID, false)
		if err != nil {
			return err
		}

		revoked, err := tx.Refresh().RevokeAllForUser(ctx, userID, s.now())
		if err != nil {
			return err
		}

		s.logger.Info("User deactivated", "user_id", userID, "revoked_tokens", revoked)
		return nil
	})

	return user, err
}
