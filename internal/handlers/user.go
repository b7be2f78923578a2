package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/handlers/render"
	"github.com/nkiryanov/storm/internal/handlers/userctx"
	"github.com/nkiryanov/storm/internal/logger"
	"github.com/nkiryanov/storm/internal/models"
	"github.com/nkiryanov/storm/internal/repository"
)

type userResponse struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FullName   *string    `json:"full_name"`
	Role       string     `json:"role"`
	IsActive   bool       `json:"is_active"`
	IsVerified bool       `json:"is_verified"`
	AvatarURL  *string    `json:"avatar_url"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		FullName:   u.FullName,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		AvatarURL:  u.AvatarURL,
		CreatedAt:  u.CreatedAt,
		LastLogin:  u.LastLogin,
	}
}

func handleUserMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, newUserResponse(user))
	})
}

func handleUpdateMe(s userService, l logger.Logger) http.Handler {
	type request struct {
		FullName  *string `json:"full_name" validate:"omitempty,max=255"`
		AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=2048"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, _ := userctx.FromContext(r.Context())
		updated, err := s.UpdateProfile(r.Context(), user.ID, repository.UpdateProfileParams{
			FullName:  data.FullName,
			AvatarURL: data.AvatarURL,
		})
		if err != nil {
			l.Error("Profile update failed", "error", err, "user_id", user.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, newUserResponse(updated))
	})
}

// Query int parameter or default if it not set
func queryInt(r *http.Request, name string, def int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

func handleListUsers(s userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, err := queryInt(r, "skip", 0)
		if err != nil || skip < 0 {
			render.ServiceError(w, "Invalid 'skip' parameter", http.StatusBadRequest)
			return
		}
		limit, err := queryInt(r, "limit", 0)
		if err != nil || limit < 0 {
			render.ServiceError(w, "Invalid 'limit' parameter", http.StatusBadRequest)
			return
		}

		users, err := s.ListUsers(r.Context(), skip, limit)
		if err != nil {
			l.Error("Users listing failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		response := make([]userResponse, 0, len(users))
		for _, u := range users {
			response = append(response, newUserResponse(u))
		}
		render.JSON(w, response)
	})
}

// Parse '{id}' path value, render 404 if it is not an id
func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "User not found", http.StatusNotFound)
		return id, false
	}
	return id, true
}

func handleGetUser(s userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}

		user, err := s.GetProfile(r.Context(), id)
		switch {
		case err == nil:
			render.JSON(w, newUserResponse(user))
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("User lookup failed", "error", err, "user_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleDeactivateUser(s userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}

		_, err := s.Deactivate(r.Context(), id)
		switch {
		case err == nil:
			render.JSON(w, messageResponse{Message: "User deactivated successfully"})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("User deactivation failed", "error", err, "user_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
