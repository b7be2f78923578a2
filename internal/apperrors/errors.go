package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrUserNotFound      = errors.New("user not found")

	// Login failed. Unknown email, wrong password and inactive user must all end here
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrMalformedToken = errors.New("token is malformed")
	ErrExpiredToken   = errors.New("token is expired")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrTokenRevoked   = errors.New("token is revoked")

	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrIdentityInactive = errors.New("identity is inactive")

	// Signing secret is missing or unusable. Startup only
	ErrSigningKey = errors.New("signing key is not configured")
)
