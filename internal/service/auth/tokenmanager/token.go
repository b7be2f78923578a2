package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/models"
)

const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	defaultSigningMethod = "HS256"
)

// Claims of both access and refresh tokens
// Subject is the user id, Type tells what the token may be used for
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm: HS256, HS384 or HS512
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock used to issue and verify tokens
	// If not set time.Now is used
	Now func() time.Time
}

type TokenManager struct {
	key []byte
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key must not be empty: %w", apperrors.ErrSigningKey)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q: %w", cfg.Alg, apperrors.ErrSigningKey)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, DefaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, DefaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// GeneratePair signs new access and refresh tokens for the user
// Nothing is stored: saving the refresh token is up to the caller
func (m *TokenManager) GeneratePair(user models.User) (models.TokenPair, error) {
	// JWT keeps seconds only
	now := m.now().UTC().Truncate(time.Second)

	access, err := m.issue(user.ID, models.TokenTypeAccess, now, m.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.issue(user.ID, models.TokenTypeRefresh, now, m.refreshTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) issue(userID uuid.UUID, tokenType string, now time.Time, ttl time.Duration) (models.IssuedToken, error) {
	issued := models.IssuedToken{
		ID:        uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	token := jwt.NewWithClaims(m.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        issued.ID.String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issued.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(issued.ExpiresAt),
		},
		Type: tokenType,
	})

	value, err := token.SignedString(m.key)
	if err != nil {
		return issued, fmt.Errorf("error while signing %s token. Err: %w", tokenType, err)
	}
	issued.Value = value

	return issued, nil
}

func (m *TokenManager) ParseAccess(token string) (models.TokenClaims, error) {
	return m.parse(token, models.TokenTypeAccess)
}

func (m *TokenManager) ParseRefresh(token string) (models.TokenClaims, error) {
	return m.parse(token, models.TokenTypeRefresh)
}

// Parse and validate token of expected type
// Errors are one of apperrors.ErrMalformedToken, ErrExpiredToken or ErrWrongTokenType
func (m *TokenManager) parse(tokenString string, tokenType string) (models.TokenClaims, error) {
	var result models.TokenClaims
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	switch {
	case err == nil:
	// Signature is checked before claims, so expired token is authentic
	case errors.Is(err, jwt.ErrTokenExpired):
		return result, fmt.Errorf("%w: %w", apperrors.ErrExpiredToken, err)
	default:
		return result, fmt.Errorf("%w: %w", apperrors.ErrMalformedToken, err)
	}

	if claims.Type != tokenType {
		return result, fmt.Errorf("%w: want %q, got %q", apperrors.ErrWrongTokenType, tokenType, claims.Type)
	}

	result.Type = claims.Type
	result.ID, err = uuid.Parse(claims.ID)
	if err != nil {
		return result, fmt.Errorf("%w: bad token id: %w", apperrors.ErrMalformedToken, err)
	}
	result.UserID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return result, fmt.Errorf("%w: bad subject: %w", apperrors.ErrMalformedToken, err)
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	result.ExpiresAt = claims.ExpiresAt.Time

	return result, nil
}
