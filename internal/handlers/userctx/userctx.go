package userctx

import (
	"context"

	"github.com/nkiryanov/storm/internal/models"
)

type ctxKey string

const (
	userKey  ctxKey = "user"
	tokenKey ctxKey = "token"
)

// Create a new context with the user
func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// Access token the user authenticated with
func WithToken(ctx context.Context, claims models.TokenClaims) context.Context {
	return context.WithValue(ctx, tokenKey, claims)
}

func TokenFromContext(ctx context.Context) (models.TokenClaims, bool) {
	c, ok := ctx.Value(tokenKey).(models.TokenClaims)
	return c, ok
}
