package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/handlers/middleware"
	"github.com/nkiryanov/storm/internal/handlers/render"
	"github.com/nkiryanov/storm/internal/handlers/userctx"
	"github.com/nkiryanov/storm/internal/logger"
	"github.com/nkiryanov/storm/internal/models"
	"github.com/nkiryanov/storm/internal/service/auth"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func newTokenResponse(pair models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		TokenType:    "bearer",
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// Render authentication failure as 401, anything else as 500
func renderAuthFailure(w http.ResponseWriter, err error, l logger.Logger) {
	if code, ok := middleware.AuthErrorCode(err); ok {
		render.AuthError(w, code)
		return
	}

	l.Error("Internal error", "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string  `json:"email" validate:"required,email,max=254"`
		Username string  `json:"username" validate:"required,min=3,max=50,username"`
		Password string  `json:"password" validate:"required,min=8,max=128"`
		FullName *string `json:"full_name" validate:"omitempty,max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := s.Register(r.Context(), auth.RegisterParams{
			Email:    data.Email,
			Username: data.Username,
			Password: data.Password,
			FullName: data.FullName,
		})
		switch {
		case err == nil:
			render.JSONWithStatus(w, newUserResponse(user), http.StatusCreated)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Email already registered", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUsernameTaken):
			render.ServiceError(w, "Username already taken", http.StatusBadRequest)
		default:
			l.Error("Registration failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			renderAuthFailure(w, err, l)
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleTokenRefresh(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.RefreshPair(r.Context(), data.RefreshToken)
		if err != nil {
			renderAuthFailure(w, err, l)
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body is optional here
		var data request
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			render.DecodeError(w, err)
			return
		}

		claims, _ := userctx.TokenFromContext(r.Context())
		if err := s.Logout(r.Context(), claims, data.RefreshToken); err != nil {
			l.Error("Logout failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: "Successfully logged out"})
	})
}

func handleVerifyToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, messageResponse{Message: "Token is valid"})
	})
}
