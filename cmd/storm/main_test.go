package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storm/internal/client"
	"github.com/nkiryanov/storm/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	listenAddr := func(t *testing.T) string {
		port, err := testutil.RandomPort()
		require.NoError(t, err, "failed to get random port to start server")
		return fmt.Sprintf("localhost:%d", port)
	}

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr(t),
			"--log-level", "debug",
			"--database", pg.DSN,
			"--secret-key", "secret",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr(t),
			"--log-level", "debug",
			"--database", pg.DSN,
		})

		require.Error(t, err, "on incorrect stop should return error")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr(t),
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--redis", "redis://localhost:1/0",
		})

		require.ErrorContains(t, err, "redis")
	})

	t.Run("session lifecycle with client", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := listenAddr(t)
		baseURL := "http://" + addr

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan error, 1)
		go func() {
			stopped <- run(ctx, os.Getenv, os.Getwd, []string{
				"--address", addr,
				"--database", pg.DSN,
				"--secret-key", "secret",
				"--redis", "redis://" + mr.Addr(),
				"--access-ttl", "2s",
			})
		}()
		t.Cleanup(func() {
			cancel()
			require.NoError(t, <-stopped)
		})

		require.Eventually(t, func() bool {
			resp, err := http.Get(baseURL + "/health")
			if err != nil {
				return false
			}
			_ = resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}, 5*time.Second, 50*time.Millisecond, "server not started")

		c, err := client.New(client.Config{BaseURL: baseURL}, &client.MemoryStore{})
		require.NoError(t, err)

		email := fmt.Sprintf("alice-%d@example.com", time.Now().UnixNano())
		_, err = c.Register(t.Context(), client.RegisterParams{
			Email:    email,
			Username: fmt.Sprintf("alice-%d", time.Now().UnixNano()),
			Password: "correct-pw",
		})
		require.NoError(t, err)

		identity, err := c.Login(t.Context(), email, "correct-pw")
		require.NoError(t, err)
		require.Equal(t, email, identity.Email)
		firstToken := c.Session().Token

		// Wait access token expired, client refreshes it on its own
		time.Sleep(2100 * time.Millisecond)
		identity, err = c.Me(t.Context())
		require.NoError(t, err)
		require.Equal(t, email, identity.Email)
		require.NotEqual(t, firstToken, c.Session().Token)

		require.NoError(t, c.Logout(t.Context()))
		require.False(t, c.Authenticated())
		require.NotEmpty(t, mr.Keys(), "access token revoked in redis")
	})
}
