package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storm/internal/client"
)

// Minimal server: alice can login with 'correct-pw', tokens never expire
func newFakeServer(t *testing.T) *httptest.Server {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	profile := map[string]any{"id": "6f0b8a36-2a4f-4bd4-9d0e-1f1b8f2f4f11", "email": "alice@example.com", "username": "alice", "role": "user", "is_active": true}
	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer access-1"
	}
	unauthorized := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "auth_failed", "code": "malformed_token", "message": "Could not validate credentials"})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req["password"]) < 8 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "validation_failed",
				"message": "Request validation failed",
				"fields":  map[string]string{"password": "Value is too short (minimum 8)"},
			})
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "correct-pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "auth_failed", "code": "invalid_credentials", "message": "Could not validate credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "access-1", "refresh_token": "refresh-1", "token_type": "bearer"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	})
	mux.HandleFunc("POST /auth/verify-token", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			unauthorized(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Token is valid"})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			unauthorized(w)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type result struct {
	stdout string
	stderr string
	err    error
}

func runCmd(t *testing.T, getenv func(string) string, stdin string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := run(t.Context(), args, getenv, strings.NewReader(stdin), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func Test_run(t *testing.T) {
	srv := newFakeServer(t)
	sessionFile := filepath.Join(t.TempDir(), "session.json")
	getenv := func(key string) string {
		switch key {
		case "STORM_SERVER":
			return srv.URL
		case "STORM_SESSION_FILE":
			return sessionFile
		default:
			return ""
		}
	}

	t.Run("not logged in", func(t *testing.T) {
		res := runCmd(t, getenv, "", "status")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Not logged in")

		res = runCmd(t, getenv, "", "me")
		require.ErrorIs(t, res.err, client.ErrNotAuthenticated)
	})

	t.Run("wrong password", func(t *testing.T) {
		res := runCmd(t, getenv, "wrong-pw\n", "login", "--email", "alice@example.com")

		var apiErr *client.APIError
		require.ErrorAs(t, res.err, &apiErr)
		require.Equal(t, "invalid_credentials", apiErr.Code)
	})

	t.Run("session lifecycle", func(t *testing.T) {
		res := runCmd(t, getenv, "correct-pw\n", "login", "--email", "alice@example.com")
		require.NoError(t, res.err)
		require.Equal(t, "Logged in as alice\n", res.stdout)

		data, err := os.ReadFile(sessionFile)
		require.NoError(t, err)
		require.Contains(t, string(data), `"storm.auth"`)

		// Every run is a new process restoring the session from file
		res = runCmd(t, getenv, "", "me")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, `"username": "alice"`)

		res = runCmd(t, getenv, "", "verify")
		require.NoError(t, res.err)
		assert.Equal(t, "Token is valid\n", res.stdout)

		res = runCmd(t, getenv, "", "status")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Logged in as alice <alice@example.com>")

		res = runCmd(t, getenv, "", "logout")
		require.NoError(t, res.err)
		assert.Equal(t, "Logged out\n", res.stdout)

		res = runCmd(t, getenv, "", "status")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Not logged in")
	})

	t.Run("register", func(t *testing.T) {
		res := runCmd(t, getenv, "correct-pw\n", "register", "--email", "alice@example.com", "--username", "alice", "--full-name", "Alice")
		require.NoError(t, res.err)
		assert.Equal(t, "Registered alice (alice@example.com)\n", res.stdout)
	})

	t.Run("register validation failed", func(t *testing.T) {
		res := runCmd(t, getenv, "short\n", "register", "--email", "alice@example.com", "--username", "alice")

		require.Error(t, res.err)
		assert.Equal(t, "Request validation failed\n  password: Value is too short (minimum 8)", describe(res.err))
	})

	t.Run("flags override env", func(t *testing.T) {
		res := runCmd(t, getenv, "correct-pw\n", "--server", "http://127.0.0.1:1", "--timeout", "100ms", "login", "--email", "alice@example.com")

		require.Error(t, res.err, "server from flag is not reachable")
	})

	t.Run("usage errors", func(t *testing.T) {
		res := runCmd(t, getenv, "")
		require.ErrorContains(t, res.err, "command required")

		res = runCmd(t, getenv, "", "dance")
		require.ErrorContains(t, res.err, `unknown command "dance"`)

		res = runCmd(t, getenv, "", "login")
		require.ErrorContains(t, res.err, "--email is required")

		res = runCmd(t, getenv, "", "update-me")
		require.ErrorContains(t, res.err, "nothing to update")

		res = runCmd(t, getenv, "", "--help")
		require.NoError(t, res.err)
		assert.Contains(t, res.stderr, "update-me")
	})
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewConfig()

		require.Equal(t, "http://localhost:8000", c.Server)
		require.Equal(t, 10*time.Second, c.Timeout)
		require.True(t, strings.HasSuffix(c.SessionFile, filepath.Join("storm", "session.json")))
	})

	t.Run("flags stop at command", func(t *testing.T) {
		c := NewConfig()

		rest, err := c.ParseFlags([]string{"--server", "http://example.com", "login", "--email", "a@example.com"}, &bytes.Buffer{})

		require.NoError(t, err)
		require.Equal(t, "http://example.com", c.Server)
		require.Equal(t, []string{"login", "--email", "a@example.com"}, rest)
	})
}

func TestGetPassword(t *testing.T) {
	t.Run("from pipe", func(t *testing.T) {
		pw, err := getPassword(strings.NewReader("secret-pw\r\nignored\n"), &bytes.Buffer{}, "Password: ")

		require.NoError(t, err)
		require.Equal(t, "secret-pw", pw)
	})

	t.Run("no trailing newline", func(t *testing.T) {
		pw, err := getPassword(strings.NewReader("secret-pw"), &bytes.Buffer{}, "Password: ")

		require.NoError(t, err)
		require.Equal(t, "secret-pw", pw)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := getPassword(strings.NewReader(""), &bytes.Buffer{}, "Password: ")

		require.Error(t, err)
	})

	t.Run("from terminal", func(t *testing.T) {
		origIsTerminal, origReadPassword := isTerminal, readPassword
		t.Cleanup(func() { isTerminal, readPassword = origIsTerminal, origReadPassword })
		isTerminal = func(fd int) bool { return true }
		readPassword = func(fd int) ([]byte, error) { return []byte("typed-pw"), nil }

		f, err := os.CreateTemp(t.TempDir(), "tty")
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })
		var out bytes.Buffer

		pw, err := getPassword(f, &out, "Password: ")

		require.NoError(t, err)
		require.Equal(t, "typed-pw", pw)
		require.Equal(t, "Password: \n", out.String())
	})
}
