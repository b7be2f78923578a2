package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/storm/internal/handlers/middleware"
	"github.com/nkiryanov/storm/internal/handlers/render"
	"github.com/nkiryanov/storm/internal/logger"
	"github.com/nkiryanov/storm/internal/models"
	"github.com/nkiryanov/storm/internal/repository"
	"github.com/nkiryanov/storm/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.NewAuth(authService, logger)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware.Auth(h)
	}
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware.Auth, middleware.RequireRole(models.RoleAdmin))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /auth/register", handleRegister(authService, logger))
	mux.Handle("POST /auth/login", handleLogin(authService, logger))
	mux.Handle("POST /auth/refresh", handleTokenRefresh(authService, logger))
	mux.Handle("POST /auth/logout", withAuth(handleLogout(authService, logger)))
	mux.Handle("POST /auth/verify-token", withAuth(handleVerifyToken()))

	mux.Handle("GET /users/me", withAuth(handleUserMe()))
	mux.Handle("PUT /users/me", withAuth(handleUpdateMe(userService, logger)))
	mux.Handle("GET /users", withAdmin(handleListUsers(userService, logger)))
	mux.Handle("GET /users/{$}", withAdmin(handleListUsers(userService, logger)))
	mux.Handle("GET /users/{id}", withAdmin(handleGetUser(userService, logger)))
	mux.Handle("PUT /users/{id}/deactivate", withAdmin(handleDeactivateUser(userService, logger)))

	mux.Handle("GET /health", handleHealth())

	handler := chain(mux,
		middleware.RequestLog(logger),
	)

	return handler
}

func handleHealth() http.Handler {
	type response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, response{Status: "healthy", Message: "Storm auth service is running"})
	})
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrUserAlreadyExists or apperrors.ErrUsernameTaken on duplicates
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)

	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials on any credentials mismatch
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Exchange refresh token to a new pair
	// Has to return apperrors.ErrInvalidRefreshToken or apperrors.ErrIdentityInactive
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	Logout(ctx context.Context, access models.TokenClaims, refresh string) error

	// Get request and return user if it authenticated or error
	AuthenticateRequest(r *http.Request) (models.User, models.TokenClaims, error)
}

type userService interface {
	UpdateProfile(ctx context.Context, userID uuid.UUID, params repository.UpdateProfileParams) (models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error)
	ListUsers(ctx context.Context, skip int, limit int) ([]models.User, error)
	Deactivate(ctx context.Context, userID uuid.UUID) (models.User, error)
}
