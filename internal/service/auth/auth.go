package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/logger"
	"github.com/nkiryanov/storm/internal/models"
	"github.com/nkiryanov/storm/internal/repository"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"

	// Compared against when user is not found, so login takes the same time
	dummyPassword = "storm-dummy-password"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type TokenManager interface {
	GeneratePair(user models.User) (models.TokenPair, error)
	ParseAccess(token string) (models.TokenClaims, error)
	ParseRefresh(token string) (models.TokenClaims, error)
}

type Config struct {
	// Hasher to use during registration or login
	// BcryptHasher with default cost if not set
	Hasher PasswordHasher

	// Header and scheme access token expected in, like 'Authorization: Bearer <token>'
	AccessHeaderName string
	AccessAuthScheme string

	// Revoked access tokens
	// If nil access tokens live till expiration
	Denylist repository.TokenDenylist

	Logger logger.Logger

	// Clock, time.Now if not set
	Now func() time.Time
}

type RegisterParams struct {
	Email    string
	Username string
	Password string
	FullName *string
}

// Auth service
type AuthService struct {
	// Manager to issue and parse token pairs (access and refresh)
	tokenManager TokenManager

	// Hasher to hash or compare user passwords
	hasher    PasswordHasher
	dummyHash func() (string, error)

	accessHeaderName string
	accessAuthScheme string

	storage  repository.Storage
	denylist repository.TokenDenylist
	logger   logger.Logger
	now      func() time.Time
}

func NewService(cfg Config, tokenManager TokenManager, storage repository.Storage) (*AuthService, error) {
	s := &AuthService{
		tokenManager:     tokenManager,
		hasher:           cfg.Hasher,
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		storage:          storage,
		denylist:         cfg.Denylist,
		logger:           cfg.Logger,
		now:              cfg.Now,
	}

	if s.hasher == nil {
		s.hasher = BcryptHasher{}
	}
	if s.accessHeaderName == "" {
		s.accessHeaderName = defaultAccessHeaderName
	}
	if s.accessAuthScheme == "" {
		s.accessAuthScheme = defaultAccessAuthScheme
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}

	hasher := s.hasher
	s.dummyHash = sync.OnceValues(func() (string, error) {
		return hasher.Hash(dummyPassword)
	})

	return s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create new active user with 'user' role
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Email:          normalizeEmail(params.Email),
		Username:       strings.TrimSpace(params.Username),
		FullName:       params.FullName,
		HashedPassword: hash,
	})
	if err != nil {
		return user, err
	}

	s.logger.Info("User registered", "user_id", user.ID)
	return user, nil
}

// Check credentials and issue new token pair
// Unknown email, wrong password and inactive user are all apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.storage.User().GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		if hash, err := s.dummyHash(); err == nil {
			_ = s.hasher.Compare(hash, password)
		}
		s.logger.Info("Login failed", "reason", "unknown email")
		return pair, apperrors.ErrInvalidCredentials
	case err != nil:
		return pair, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		s.logger.Info("Login failed", "reason", "wrong password", "user_id", user.ID)
		return pair, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("Login failed", "reason", "inactive user", "user_id", user.ID)
		return pair, apperrors.ErrInvalidCredentials
	}

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.User().SetLastLogin(ctx, user.ID, s.now()); err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, user)
		return err
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Generate token pair and save refresh token so it may be used once
func (s *AuthService) issuePair(ctx context.Context, storage repository.Storage, user models.User) (models.TokenPair, error) {
	pair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return pair, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	_, err = storage.Refresh().Save(ctx, models.RefreshToken{
		ID:        pair.Refresh.ID,
		UserID:    user.ID,
		CreatedAt: pair.Refresh.IssuedAt,
		ExpiresAt: pair.Refresh.ExpiresAt,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// Exchange refresh token to new pair. Refresh token is usable once
// Errors are apperrors.ErrInvalidRefreshToken or apperrors.ErrIdentityInactive joined with the cause
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	claims, err := s.tokenManager.ParseRefresh(refresh)
	if err != nil {
		return pair, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}

	// Replay revokes the lineage. It must be committed, so it's reported apart from tx error
	var replayErr error

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		token, err := tx.Refresh().GetAndMarkUsed(ctx, claims.ID, s.now())
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
			revoked, err := tx.Refresh().RevokeAllForUser(ctx, token.UserID, s.now())
			if err != nil {
				return err
			}
			s.logger.Warn("Refresh token replay, user tokens revoked", "user_id", token.UserID, "token_id", token.ID, "revoked", revoked)
			replayErr = fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenIsUsed)
			return nil
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
		case err != nil:
			return err
		}

		if !token.ExpiresAt.After(s.now()) {
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenExpired)
		}

		user, err := tx.User().GetUserByID(ctx, token.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return fmt.Errorf("%w: %w", apperrors.ErrIdentityInactive, err)
		case err != nil:
			return err
		case !user.IsActive:
			return apperrors.ErrIdentityInactive
		}

		pair, err = s.issuePair(ctx, tx, user)
		return err
	})

	switch {
	case err != nil:
		return models.TokenPair{}, err
	case replayErr != nil:
		return models.TokenPair{}, replayErr
	default:
		return pair, nil
	}
}

// Verify access token and return its owner
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, models.TokenClaims, error) {
	claims, err := s.tokenManager.ParseAccess(access)
	if err != nil {
		return models.User{}, claims, err
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return models.User{}, claims, err
		}
		if revoked {
			return models.User{}, claims, apperrors.ErrTokenRevoked
		}
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, claims, fmt.Errorf("%w: %w", apperrors.ErrIdentityInactive, err)
	case err != nil:
		return user, claims, err
	case !user.IsActive:
		return user, claims, apperrors.ErrIdentityInactive
	}

	return user, claims, nil
}

// Authenticate request by access token in header
// Missing header or scheme is a malformed token
func (s *AuthService) AuthenticateRequest(r *http.Request) (models.User, models.TokenClaims, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return models.User{}, models.TokenClaims{}, fmt.Errorf("%w: no %s token in %s header", apperrors.ErrMalformedToken, s.accessAuthScheme, s.accessHeaderName)
	}

	return s.Authenticate(r.Context(), strings.TrimSpace(token))
}

// Logout revokes presented access token (if denylist configured) and consumes the refresh token
// Refresh token is optional. Foreign or broken refresh tokens are ignored
func (s *AuthService) Logout(ctx context.Context, access models.TokenClaims, refresh string) error {
	if s.denylist != nil {
		if err := s.denylist.Revoke(ctx, access.ID, access.ExpiresAt); err != nil {
			return err
		}
	}

	if refresh == "" {
		return nil
	}

	claims, err := s.tokenManager.ParseRefresh(refresh)
	if err != nil || claims.UserID != access.UserID {
		s.logger.Debug("Logout with unusable refresh token ignored", "user_id", access.UserID)
		return nil
	}

	_, err = s.storage.Refresh().GetAndMarkUsed(ctx, claims.ID, s.now())
	if err != nil && !errors.Is(err, apperrors.ErrRefreshTokenIsUsed) && !errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
		return err
	}

	s.logger.Info("User logged out", "user_id", access.UserID)
	return nil
}
