package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storm/internal/testutil"
)

func Test_UserHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Register admin and regular user, return their access tokens
	setup := func(t *testing.T, s testServer) (admin tokens, alice tokens) {
		s.register(t, "admin@example.com", "admin", "admin-pw-123")
		s.register(t, "alice@example.com", "alice", "correct-pw")
		_, err := s.Tx.Exec(t.Context(), `UPDATE users SET role = 'admin' WHERE email = 'admin@example.com'`)
		require.NoError(t, err)

		return s.login(t, "admin@example.com", "admin-pw-123"), s.login(t, "alice@example.com", "correct-pw")
	}

	t.Run("me without token", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			status, body, _ := s.do(t, "GET", "/users/me", "", "")

			require.Equal(t, http.StatusUnauthorized, status)
			require.JSONEq(t, authFailedBody("malformed_token"), body)
		})
	})

	t.Run("update me", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			_, alice := setup(t, s)

			status, body, _ := s.do(t, "PUT", "/users/me", alice.AccessToken, `{"full_name": "Alice L.", "avatar_url": "https://cdn.example.com/alice.png"}`)

			require.Equalf(t, http.StatusOK, status, "body: %s", body)
			profile := decode[map[string]any](t, body)
			assert.Equal(t, "Alice L.", profile["full_name"])
			assert.Equal(t, "https://cdn.example.com/alice.png", profile["avatar_url"])
		})
	})

	t.Run("update me invalid avatar", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			_, alice := setup(t, s)

			status, _, _ := s.do(t, "PUT", "/users/me", alice.AccessToken, `{"avatar_url": "not a url"}`)

			require.Equal(t, http.StatusBadRequest, status)
		})
	})

	t.Run("list users", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			admin, alice := setup(t, s)

			status, body, _ := s.do(t, "GET", "/users/?skip=0&limit=10", admin.AccessToken, "")
			require.Equalf(t, http.StatusOK, status, "body: %s", body)
			assert.Len(t, decode[[]map[string]any](t, body), 2)

			status, body, _ = s.do(t, "GET", "/users?skip=1", admin.AccessToken, "")
			require.Equalf(t, http.StatusOK, status, "body: %s", body)
			assert.Len(t, decode[[]map[string]any](t, body), 1)

			status, _, _ = s.do(t, "GET", "/users/?limit=x", admin.AccessToken, "")
			require.Equal(t, http.StatusBadRequest, status)

			status, _, _ = s.do(t, "GET", "/users/", alice.AccessToken, "")
			require.Equal(t, http.StatusForbidden, status, "regular users can't list users")
		})
	})

	t.Run("get user", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			admin, alice := setup(t, s)
			_, me, _ := s.do(t, "GET", "/users/me", alice.AccessToken, "")
			aliceID := decode[map[string]any](t, me)["id"].(string)

			status, body, _ := s.do(t, "GET", "/users/"+aliceID, admin.AccessToken, "")
			require.Equalf(t, http.StatusOK, status, "body: %s", body)
			assert.Equal(t, "alice", decode[map[string]any](t, body)["username"])

			status, _, _ = s.do(t, "GET", "/users/"+uuid.NewString(), admin.AccessToken, "")
			require.Equal(t, http.StatusNotFound, status)

			status, _, _ = s.do(t, "GET", "/users/42", admin.AccessToken, "")
			require.Equal(t, http.StatusNotFound, status)
		})
	})

	t.Run("deactivate user", func(t *testing.T) {
		withServer(pg.Pool, t, func(s testServer) {
			admin, alice := setup(t, s)
			_, me, _ := s.do(t, "GET", "/users/me", alice.AccessToken, "")
			aliceID := decode[map[string]any](t, me)["id"].(string)

			status, body, _ := s.do(t, "PUT", "/users/"+aliceID+"/deactivate", admin.AccessToken, "")
			require.Equalf(t, http.StatusOK, status, "body: %s", body)
			require.JSONEq(t, `{"message": "User deactivated successfully"}`, body)

			status, body, _ = s.do(t, "GET", "/users/me", alice.AccessToken, "")
			require.Equal(t, http.StatusUnauthorized, status)
			require.JSONEq(t, authFailedBody("identity_inactive"), body)

			status, body, _ = s.do(t, "POST", "/auth/refresh", "", `{"refresh_token": "`+alice.RefreshToken+`"}`)
			require.Equal(t, http.StatusUnauthorized, status)
			require.JSONEq(t, authFailedBody("invalid_refresh_token"), body, "refresh tokens are revoked on deactivation")

			status, _, _ = s.do(t, "PUT", "/users/"+uuid.NewString()+"/deactivate", admin.AccessToken, "")
			require.Equal(t, http.StatusNotFound, status)
		})
	})
}
