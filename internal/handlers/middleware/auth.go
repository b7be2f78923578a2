package middleware

import (
	"errors"
	"net/http"
	"slices"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/handlers/render"
	"github.com/nkiryanov/storm/internal/handlers/userctx"
	"github.com/nkiryanov/storm/internal/models"
)

// Machine readable codes of 401 responses
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeMalformedToken      = "malformed_token"
	CodeTokenExpired        = "token_expired"
	CodeWrongTokenType      = "wrong_token_type"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeIdentityInactive    = "identity_inactive"
	CodeTokenRevoked        = "token_revoked"
)

// Order matters: refresh errors wrap the token errors that caused them
var authErrorCodes = []struct {
	err  error
	code string
}{
	{apperrors.ErrInvalidCredentials, CodeInvalidCredentials},
	{apperrors.ErrIdentityInactive, CodeIdentityInactive},
	{apperrors.ErrInvalidRefreshToken, CodeInvalidRefreshToken},
	{apperrors.ErrTokenRevoked, CodeTokenRevoked},
	{apperrors.ErrExpiredToken, CodeTokenExpired},
	{apperrors.ErrWrongTokenType, CodeWrongTokenType},
	{apperrors.ErrMalformedToken, CodeMalformedToken},
}

// AuthErrorCode returns 401 code for authentication errors
// False means err is not an authentication failure
func AuthErrorCode(err error) (string, bool) {
	for _, c := range authErrorCodes {
		if errors.Is(err, c.err) {
			return c.code, true
		}
	}
	return "", false
}

type authService interface {
	AuthenticateRequest(r *http.Request) (models.User, models.TokenClaims, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

type Auth struct {
	service authService
	logger  errorLogger
}

func NewAuth(s authService, l errorLogger) *Auth {
	return &Auth{service: s, logger: l}
}

// Auth passes request further only if it has valid access token
// User and token are put to request context
func (a *Auth) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, claims, err := a.service.AuthenticateRequest(r)
		if err != nil {
			if code, ok := AuthErrorCode(err); ok {
				recordAuthFailure(r.Context(), code)
				render.AuthError(w, code)
				return
			}
			if a.logger != nil {
				a.logger.Error("Authentication failed", "error", err)
			}
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		recordUser(r.Context(), user.ID)
		ctx := userctx.WithToken(userctx.New(r.Context(), user), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole has to be applied after Auth
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.AuthError(w, CodeMalformedToken)
				return
			}
			if !slices.Contains(roles, user.Role) {
				render.ServiceError(w, "Not enough permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
