package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/storm/internal/apperrors"
	"github.com/nkiryanov/storm/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Manual clock to travel in time without sleeping
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, c *clock) *TokenManager {
	t.Helper()
	m, err := New(Config{
		SecretKey:  "test-secret-key",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        c.Now,
	})
	require.NoError(t, err, "token manager should be created without errors")
	return m
}

func Test_New(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		assert.Equal(t, []byte("secret"), m.key, "secret key should be set")
		assert.Equal(t, 30*time.Minute, m.accessTTL, "default access token TTL should be set")
		assert.Equal(t, 7*24*time.Hour, m.refreshTTL, "default refresh token TTL")
		assert.Equal(t, "HS256", m.alg.Alg(), "default signing method should be set")
		assert.NotNil(t, m.now)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := New(Config{})

		require.ErrorIs(t, err, apperrors.ErrSigningKey)
	})

	t.Run("not hmac algorithm", func(t *testing.T) {
		_, err := New(Config{SecretKey: "secret", Alg: "RS256"})

		require.ErrorIs(t, err, apperrors.ErrSigningKey)
	})

	t.Run("stronger hmac", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", Alg: "HS512"})

		require.NoError(t, err)
		assert.Equal(t, "HS512", m.alg.Alg())
	})
}

func Test_TokenManager(t *testing.T) {
	testUser := models.User{
		ID:       uuid.New(),
		Email:    "alice@example.com",
		Username: "alice",
	}
	start := mustParseTime("2025-01-01 10:00:00Z")

	t.Run("GeneratePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})

			pair, err := m.GeneratePair(testUser)

			require.NoError(t, err)
			assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
			assert.Equal(t, start.Add(15*time.Minute), pair.Access.ExpiresAt)
			assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			assert.Equal(t, start.Add(24*time.Hour), pair.Refresh.ExpiresAt)
			assert.NotEqual(t, pair.Access.ID, pair.Refresh.ID)
		})

		t.Run("claims", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			pair, err := m.GeneratePair(testUser)
			require.NoError(t, err)

			claims := &Claims{}
			_, err = jwt.ParseWithClaims(pair.Access.Value, claims, func(token *jwt.Token) (any, error) {
				return []byte("test-secret-key"), nil
			}, jwt.WithTimeFunc(func() time.Time { return start }))
			require.NoError(t, err)

			assert.Equal(t, testUser.ID.String(), claims.Subject, "subject is the user id")
			assert.Equal(t, pair.Access.ID.String(), claims.ID, "token has to has jti")
			assert.Equal(t, "access", claims.Type)
			assert.WithinDuration(t, start, claims.IssuedAt.Time, 0)
			assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match token pair")
		})

		t.Run("generate different tokens", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})

			pair1, err := m.GeneratePair(testUser)
			require.NoError(t, err)
			pair2, err := m.GeneratePair(testUser)
			require.NoError(t, err)

			assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
			assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
		})
	})

	t.Run("round trip for any moment before expiration", func(t *testing.T) {
		offsets := []time.Duration{0, time.Second, 5 * time.Minute, 15*time.Minute - time.Second}

		for _, offset := range offsets {
			t.Run(offset.String(), func(t *testing.T) {
				c := &clock{now: start}
				m := newTestManager(t, c)
				user := models.User{ID: uuid.New()}
				pair, err := m.GeneratePair(user)
				require.NoError(t, err)
				c.Advance(offset)

				claims, err := m.ParseAccess(pair.Access.Value)

				require.NoError(t, err)
				assert.Equal(t, user.ID, claims.UserID)
				assert.Equal(t, pair.Access.ID, claims.ID)
				assert.Equal(t, models.TokenTypeAccess, claims.Type)
				assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt, 0)

				refresh, err := m.ParseRefresh(pair.Refresh.Value)
				require.NoError(t, err)
				assert.Equal(t, user.ID, refresh.UserID)
				assert.Equal(t, models.TokenTypeRefresh, refresh.Type)
			})
		}
	})

	t.Run("ParseAccess", func(t *testing.T) {
		t.Run("not a token", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})

			_, err := m.ParseAccess("invalid token")

			require.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})

		t.Run("expired token", func(t *testing.T) {
			for _, after := range []time.Duration{15 * time.Minute, 15*time.Minute + time.Second, 365 * 24 * time.Hour} {
				c := &clock{now: start}
				m := newTestManager(t, c)
				pair, err := m.GeneratePair(testUser)
				require.NoError(t, err)
				c.Advance(after)

				_, err = m.ParseAccess(pair.Access.Value)

				require.ErrorIs(t, err, apperrors.ErrExpiredToken, "expired after %s", after)
				require.NotErrorIs(t, err, apperrors.ErrMalformedToken)
			}
		})

		t.Run("expired token with foreign signature is malformed", func(t *testing.T) {
			c := &clock{now: start}
			foreign, err := New(Config{SecretKey: "another-key", Now: c.Now})
			require.NoError(t, err)
			pair, err := foreign.GeneratePair(testUser)
			require.NoError(t, err)
			c.Advance(48 * time.Hour)

			_, err = newTestManager(t, c).ParseAccess(pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})

		t.Run("tampered token", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			pair, err := m.GeneratePair(testUser)
			require.NoError(t, err)

			_, err = m.ParseAccess(pair.Access.Value + "x")

			require.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})

		t.Run("refresh token used as access", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			pair, err := m.GeneratePair(testUser)
			require.NoError(t, err)

			_, err = m.ParseAccess(pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrWrongTokenType)
		})

		t.Run("access token used as refresh", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			pair, err := m.GeneratePair(testUser)
			require.NoError(t, err)

			_, err = m.ParseRefresh(pair.Access.Value)

			require.ErrorIs(t, err, apperrors.ErrWrongTokenType)
		})

		t.Run("not signed token", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			token := jwt.NewWithClaims(
				jwt.SigningMethodNone,
				Claims{
					RegisteredClaims: jwt.RegisteredClaims{
						ID:        uuid.NewString(),
						Subject:   testUser.ID.String(),
						IssuedAt:  jwt.NewNumericDate(start),
						ExpiresAt: jwt.NewNumericDate(start.Add(15 * time.Minute)),
					},
					Type: models.TokenTypeAccess,
				},
			)
			access, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)

			_, err = m.ParseAccess(access)

			require.ErrorIs(t, err, apperrors.ErrMalformedToken, "Valid token with empty alg must fail")
		})

		t.Run("token without expiration", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
				RegisteredClaims: jwt.RegisteredClaims{ID: uuid.NewString(), Subject: testUser.ID.String()},
				Type:             models.TokenTypeAccess,
			})
			access, err := token.SignedString([]byte("test-secret-key"))
			require.NoError(t, err)

			_, err = m.ParseAccess(access)

			require.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})

		t.Run("subject is not user id", func(t *testing.T) {
			m := newTestManager(t, &clock{now: start})
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID:        uuid.NewString(),
					Subject:   "alice@example.com",
					ExpiresAt: jwt.NewNumericDate(start.Add(time.Minute)),
				},
				Type: models.TokenTypeAccess,
			})
			access, err := token.SignedString([]byte("test-secret-key"))
			require.NoError(t, err)

			_, err = m.ParseAccess(access)

			require.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})
	})
}
